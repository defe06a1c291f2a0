package purchase

import "context"

// OperationLogger records domain-level events emitted by the purchase core.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a read degradation or a state-changing operation.
type OperationLog struct {
	Operation string
	Property  Address
	Wallet    Address
	TxHash    TxHash
	Amount    Amount
	Slots     []SlotID
	PromoHash PromoHash
	Status    string
	Error     error
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = OperationStatusError
		} else {
			entry.Status = OperationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
