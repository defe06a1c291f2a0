package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

var (
	ErrDuplicateSubmission     = errors.New("duplicate submission")
	ErrUnknownSubmission       = errors.New("unknown submission")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidKind             = errors.New("invalid submission kind")
	ErrInvalidStatus           = errors.New("invalid submission status")
)

// Kind names the ledger write a submission came from.
type Kind string

const (
	KindApprove      Kind = "approve"
	KindBuy          Kind = "buy"
	KindBuyWithPromo Kind = "buy_with_promo"
)

// ParseKind validates a stored kind value.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindApprove, KindBuy, KindBuyWithPromo:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Status tracks a submission from broadcast to receipt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
)

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusConfirmed, StatusReverted:
		return Status(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Submission is one transaction the purchase core broadcast.
type Submission struct {
	ID        string
	Wallet    purchase.Address
	Property  purchase.Address
	Kind      Kind
	TxHash    purchase.TxHash
	Amount    purchase.Amount
	Slots     []purchase.SlotID
	PromoHash *purchase.PromoHash
	Status    Status
	ErrorText string
	CreatedAt time.Time
	UpdatedAt time.Time
}
