package purchase

import (
	"context"
	"fmt"
)

// ApprovalManager decides whether the payment token allowance covers a spend
// and submits approvals for exactly the required amount.
type ApprovalManager struct {
	gateway LedgerGateway
}

// NewApprovalManager wires an ApprovalManager.
func NewApprovalManager(gateway LedgerGateway) (*ApprovalManager, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	return &ApprovalManager{gateway: gateway}, nil
}

// Check reads the current allowance and compares it to required. The result is
// never cached: callers re-run Check whenever the requirement changes.
func (manager *ApprovalManager) Check(ctx context.Context, owner Address, spender Address, required Amount) (AllowanceState, error) {
	if owner.IsZero() {
		return AllowanceState{}, ErrWalletNotConnected
	}
	allowance, err := manager.gateway.GetAllowance(ctx, owner, spender)
	if err != nil {
		return AllowanceState{}, err
	}
	return AllowanceState{
		Owner:         owner,
		Spender:       spender,
		Allowance:     allowance,
		Required:      required,
		NeedsApproval: allowance < required,
	}, nil
}

// NeedsApproval reports whether an approval must precede a spend of required.
func (manager *ApprovalManager) NeedsApproval(ctx context.Context, owner Address, spender Address, required Amount) (bool, error) {
	state, err := manager.Check(ctx, owner, spender, required)
	if err != nil {
		return false, err
	}
	return state.NeedsApproval, nil
}

// Approve submits an approval for amount. No buffer is added.
func (manager *ApprovalManager) Approve(ctx context.Context, spender Address, amount Amount) (TxHash, error) {
	if amount <= 0 {
		return TxHash{}, fmt.Errorf("%w: approval must be greater than zero", ErrInvalidAmount)
	}
	return manager.gateway.Approve(ctx, spender, amount)
}
