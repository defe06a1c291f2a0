package purchase

import "context"

// LedgerGateway is the read/write contract with the on-chain marketplace,
// payment token, and slot contracts. Reads are idempotent. Writes return the
// pending transaction reference as soon as the transaction is submitted.
type LedgerGateway interface {
	GetProperty(ctx context.Context, property Address) (Property, error)
	GetAvailableSlots(ctx context.Context, property Address) ([]SlotID, error)
	GetTotalSupply(ctx context.Context, slotContract Address) (int64, error)
	GetPromoCodeTerms(ctx context.Context, promoHash PromoHash) (PromoTerms, error)
	GetCost(ctx context.Context, property Address, slotCount int) (Amount, error)
	GetCostWithPromo(ctx context.Context, property Address, slotCount int, promoHash PromoHash) (Amount, error)
	GetAllowance(ctx context.Context, owner Address, spender Address) (Amount, error)
	GetBalance(ctx context.Context, owner Address) (Amount, error)
	Spender() Address

	Approve(ctx context.Context, spender Address, amount Amount) (TxHash, error)
	Buy(ctx context.Context, property Address, slots []SlotID) (TxHash, error)
	BuyWithPromo(ctx context.Context, property Address, slots []SlotID, promoHash PromoHash, signature Signature) (TxHash, error)
	// AwaitTransaction blocks until the transaction is mined. A revert yields
	// an error wrapping ErrTransactionReverted.
	AwaitTransaction(ctx context.Context, hash TxHash) error
}

// SignedPromo is the signing service's answer for an (address, code) pair.
// Either field may be empty when the service omits it.
type SignedPromo struct {
	Signature string
	PromoHash string
}

// PromoSigner is the off-chain promo signing service.
type PromoSigner interface {
	Sign(ctx context.Context, wallet Address, code string) (SignedPromo, error)
}

// Session supplies wallet identity and network state.
type Session interface {
	IsConnected() bool
	IsWrongNetwork() bool
	ChainID() uint64
	Account() Address
	SwitchNetwork(ctx context.Context) error
}

// Gallery returns the ordered image URLs for a slot contract. Implementations
// degrade to a placeholder list instead of failing.
type Gallery interface {
	Images(ctx context.Context, slotContract Address) []string
}
