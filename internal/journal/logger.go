package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"go.uber.org/zap"
)

// Logger writes one structured log line per purchase operation and keeps
// the submission journal in step with approve and buy transactions.
type Logger struct {
	logger *zap.Logger
	store  Store
	nowFn  func() time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithStore enables journaling of submitted transactions.
func WithStore(store Store) LoggerOption {
	return func(logger *Logger) {
		logger.store = store
	}
}

// WithClock replaces the wall clock used for journal timestamps.
func WithClock(now func() time.Time) LoggerOption {
	return func(logger *Logger) {
		if now != nil {
			logger.nowFn = now
		}
	}
}

// NewLogger wires a Logger.
func NewLogger(logger *zap.Logger, options ...LoggerOption) (*Logger, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: zap logger is nil", purchase.ErrInvalidServiceConfig)
	}
	journalLogger := &Logger{
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		if option != nil {
			option(journalLogger)
		}
	}
	return journalLogger, nil
}

// LogOperation implements purchase.OperationLogger.
func (logger *Logger) LogOperation(ctx context.Context, entry purchase.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Property.IsZero() {
		fields = append(fields, zap.String("property", entry.Property.String()))
	}
	if !entry.Wallet.IsZero() {
		fields = append(fields, zap.String("wallet", entry.Wallet.String()))
	}
	if !entry.TxHash.IsZero() {
		fields = append(fields, zap.String("tx_hash", entry.TxHash.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.String("amount", purchase.FormatAmount(entry.Amount)))
	}
	if len(entry.Slots) > 0 {
		fields = append(fields, zap.Ints("slots", slotInts(entry.Slots)))
	}
	if !entry.PromoHash.IsZero() {
		fields = append(fields, zap.String("promo_hash", entry.PromoHash.Hex()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		logger.logger.Warn("purchase operation failed", fields...)
	} else {
		logger.logger.Info("purchase operation", fields...)
	}
	logger.journal(ctx, entry)
}

func (logger *Logger) journal(ctx context.Context, entry purchase.OperationLog) {
	if logger.store == nil || entry.TxHash.IsZero() {
		return
	}
	kind, err := ParseKind(entry.Operation)
	if err != nil {
		return
	}
	switch entry.Status {
	case purchase.OperationStatusSubmitted:
		now := logger.nowFn()
		submission := Submission{
			Wallet:    entry.Wallet,
			Property:  entry.Property,
			Kind:      kind,
			TxHash:    entry.TxHash,
			Amount:    entry.Amount,
			Slots:     append([]purchase.SlotID(nil), entry.Slots...),
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if !entry.PromoHash.IsZero() {
			promoHash := entry.PromoHash
			submission.PromoHash = &promoHash
		}
		if recordErr := logger.store.Record(ctx, submission); recordErr != nil && !errors.Is(recordErr, ErrDuplicateSubmission) {
			logger.logger.Error("journal record failed", zap.String("tx_hash", entry.TxHash.String()), zap.Error(recordErr))
		}
	case purchase.OperationStatusConfirmed:
		logger.resolve(ctx, entry.TxHash, StatusConfirmed, "")
	case purchase.OperationStatusError:
		// Only a reported revert is final; any other failure leaves the
		// transaction pending on chain.
		if !errors.Is(entry.Error, purchase.ErrTransactionReverted) {
			return
		}
		logger.resolve(ctx, entry.TxHash, StatusReverted, entry.Error.Error())
	}
}

func (logger *Logger) resolve(ctx context.Context, hash purchase.TxHash, status Status, errorText string) {
	if err := logger.store.Resolve(ctx, hash, status, errorText); err != nil {
		logger.logger.Error("journal resolve failed", zap.String("tx_hash", hash.String()), zap.String("status", string(status)), zap.Error(err))
	}
}

func slotInts(slots []purchase.SlotID) []int {
	values := make([]int, len(slots))
	for index, slot := range slots {
		values[index] = slot.Int()
	}
	return values
}
