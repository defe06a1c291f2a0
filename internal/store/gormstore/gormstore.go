package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/internal/journal"
	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintSubmissionTxHash = "purchase_submissions_tx_hash_key"
	defaultSlotsJSON           = "[]"
	defaultListLimit           = 50
	maxListLimit               = 200
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	errorOperationStore        = "store"
	errorSubjectSubmission     = "submission"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeUpdateStatus      = "update_status"
)

// Store implements journal.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the journal table.
func (store *Store) AutoMigrate(ctx context.Context) error {
	return store.db.WithContext(ctx).AutoMigrate(&Submission{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore journal.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) Record(ctx context.Context, submission journal.Submission) error {
	slotsJSON, err := json.Marshal(slotInts(submission.Slots))
	if err != nil {
		return wrapStoreError(errorCodeInvalid, err)
	}
	var promoHash *string
	if submission.PromoHash != nil {
		value := submission.PromoHash.Hex()
		promoHash = &value
	}
	model := Submission{
		SubmissionID: submission.ID,
		Wallet:       submission.Wallet.Hex(),
		Property:     submission.Property.Hex(),
		Kind:         string(submission.Kind),
		TxHash:       submission.TxHash.String(),
		AmountMinor:  submission.Amount.Int64(),
		SlotIDs:      datatypesJSON(string(slotsJSON)),
		PromoHash:    promoHash,
		Status:       string(submission.Status),
		ErrorText:    submission.ErrorText,
		CreatedAt:    submission.CreatedAt.UTC(),
		UpdatedAt:    submission.UpdatedAt.UTC(),
	}
	if model.Status == "" {
		model.Status = string(journal.StatusPending)
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isTxHashConflict(err) {
		return wrapStoreError(errorCodeDuplicate, journal.ErrDuplicateSubmission)
	}
	if err != nil {
		return wrapStoreError(errorCodeInsert, err)
	}
	return nil
}

// Resolve only moves pending submissions; a resolved one reports
// journal.ErrInvalidStatusTransition.
func (store *Store) Resolve(ctx context.Context, hash purchase.TxHash, status journal.Status, errorText string) error {
	if status == journal.StatusPending {
		return wrapStoreError(errorCodeUpdateStatus, journal.ErrInvalidStatusTransition)
	}
	result := store.db.WithContext(ctx).
		Model(&Submission{}).
		Where("tx_hash = ? AND status = ?", hash.String(), string(journal.StatusPending)).
		Updates(map[string]interface{}{
			"status":     string(status),
			"error_text": errorText,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&Submission{}).Where("tx_hash = ?", hash.String()).Count(&count).Error; err != nil {
		return wrapStoreError(errorCodeUpdateStatus, err)
	}
	if count == 0 {
		return wrapStoreError(errorCodeUpdateStatus, journal.ErrUnknownSubmission)
	}
	return wrapStoreError(errorCodeUpdateStatus, journal.ErrInvalidStatusTransition)
}

func (store *Store) Get(ctx context.Context, hash purchase.TxHash) (journal.Submission, error) {
	var model Submission
	err := store.db.WithContext(ctx).Where("tx_hash = ?", hash.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return journal.Submission{}, wrapStoreError(errorCodeGet, journal.ErrUnknownSubmission)
		}
		return journal.Submission{}, wrapStoreError(errorCodeGet, err)
	}
	submission, err := mapSubmission(model)
	if err != nil {
		return journal.Submission{}, wrapStoreError(errorCodeInvalid, err)
	}
	return submission, nil
}

func (store *Store) ListByWallet(ctx context.Context, wallet purchase.Address, limit int) ([]journal.Submission, error) {
	var rows []Submission
	err := store.db.WithContext(ctx).
		Where("wallet = ?", wallet.Hex()).
		Order("created_at DESC").
		Limit(normalizeListLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorCodeList, err)
	}
	submissions := make([]journal.Submission, 0, len(rows))
	for _, row := range rows {
		submission, err := mapSubmission(row)
		if err != nil {
			return nil, wrapStoreError(errorCodeInvalid, err)
		}
		submissions = append(submissions, submission)
	}
	return submissions, nil
}

func wrapStoreError(code string, err error) error {
	return purchase.WrapError(errorOperationStore, errorSubjectSubmission, code, err)
}

func normalizeListLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func mapSubmission(row Submission) (journal.Submission, error) {
	wallet, err := purchase.NewAddress(row.Wallet)
	if err != nil {
		return journal.Submission{}, err
	}
	property, err := purchase.NewAddress(row.Property)
	if err != nil {
		return journal.Submission{}, err
	}
	kind, err := journal.ParseKind(row.Kind)
	if err != nil {
		return journal.Submission{}, err
	}
	txHash, err := purchase.NewTxHash(row.TxHash)
	if err != nil {
		return journal.Submission{}, err
	}
	amount, err := purchase.NewAmount(row.AmountMinor)
	if err != nil {
		return journal.Submission{}, err
	}
	var rawSlots []int
	if err := json.Unmarshal(row.SlotIDs, &rawSlots); err != nil {
		return journal.Submission{}, err
	}
	slots := make([]purchase.SlotID, len(rawSlots))
	for index, raw := range rawSlots {
		slots[index] = purchase.SlotID(raw)
	}
	var promoHash *purchase.PromoHash
	if row.PromoHash != nil {
		parsed, err := purchase.NewPromoHash(*row.PromoHash)
		if err != nil {
			return journal.Submission{}, err
		}
		promoHash = &parsed
	}
	status, err := journal.ParseStatus(row.Status)
	if err != nil {
		return journal.Submission{}, err
	}
	return journal.Submission{
		ID:        row.SubmissionID,
		Wallet:    wallet,
		Property:  property,
		Kind:      kind,
		TxHash:    txHash,
		Amount:    amount,
		Slots:     slots,
		PromoHash: promoHash,
		Status:    status,
		ErrorText: row.ErrorText,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func slotInts(slots []purchase.SlotID) []int {
	values := make([]int, len(slots))
	for index, slot := range slots {
		values[index] = slot.Int()
	}
	return values
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" || raw == "null" {
		return datatypes.JSON([]byte(defaultSlotsJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isTxHashConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintSubmissionTxHash
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
