package journal

import (
	"context"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

// Store persists submissions.
type Store interface {
	// Record inserts a pending submission. A second record for the same
	// transaction hash fails with ErrDuplicateSubmission.
	Record(ctx context.Context, submission Submission) error
	// Resolve moves a pending submission to confirmed or reverted.
	Resolve(ctx context.Context, hash purchase.TxHash, status Status, errorText string) error
	Get(ctx context.Context, hash purchase.TxHash) (Submission, error)
	// ListByWallet returns the wallet's submissions newest first.
	ListByWallet(ctx context.Context, wallet purchase.Address, limit int) ([]Submission, error)
}
