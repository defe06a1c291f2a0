package purchase

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Address is a validated 20-byte ledger account or contract address.
type Address struct {
	value string
}

// NewAddress validates a 0x-prefixed hex address. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower or all-upper input is accepted as-is.
func NewAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return Address{}, fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
	}
	body := trimmed[2:]
	if len(body) != addressHexLength {
		return Address{}, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidAddress, addressHexLength, len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return Address{}, fmt.Errorf("%w: not hex", ErrInvalidAddress)
	}
	lower := strings.ToLower(body)
	upper := strings.ToUpper(body)
	if body != lower && body != upper && checksumHex(lower) != body {
		return Address{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return Address{value: "0x" + lower}, nil
}

// MustAddress panics on invalid input; reserved for compile-time constants.
func MustAddress(raw string) Address {
	address, err := NewAddress(raw)
	if err != nil {
		panic(err)
	}
	return address
}

// Hex returns the lower-case 0x form.
func (address Address) Hex() string {
	return address.value
}

// String returns the EIP-55 checksummed form.
func (address Address) String() string {
	if address.value == "" {
		return ""
	}
	return "0x" + checksumHex(address.value[2:])
}

// IsZero reports whether the address is unset.
func (address Address) IsZero() bool {
	return address.value == ""
}

func checksumHex(lowerHex string) string {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(lowerHex))
	digest := hasher.Sum(nil)
	result := []byte(lowerHex)
	for index := range result {
		if result[index] < 'a' || result[index] > 'f' {
			continue
		}
		nibble := digest[index/2]
		if index%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			result[index] -= 'a' - 'A'
		}
	}
	return string(result)
}

// Amount is an integer currency in minor units (AmountScale per display unit).
type Amount int64

// NewAmount validates a non-negative minor-unit amount.
func NewAmount(raw int64) (Amount, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount(raw), nil
}

// AmountFromBig converts a ledger integer into an Amount.
func AmountFromBig(raw *big.Int) (Amount, error) {
	if raw == nil {
		return 0, fmt.Errorf("%w: nil value", ErrInvalidAmount)
	}
	if raw.Sign() < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if !raw.IsInt64() {
		return 0, fmt.Errorf("%w: %s overflows int64", ErrInvalidAmount, raw.String())
	}
	return Amount(raw.Int64()), nil
}

// Int64 returns the raw minor-unit value.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// Big returns the amount as a ledger integer.
func (amount Amount) Big() *big.Int {
	return big.NewInt(int64(amount))
}

// Add sums two amounts, rejecting overflow.
func (amount Amount) Add(other Amount) (Amount, error) {
	if other > 0 && amount > math.MaxInt64-other {
		return 0, fmt.Errorf("%w: addition overflow", ErrInvalidAmount)
	}
	return amount + other, nil
}

// Times multiplies by a non-negative count, rejecting overflow.
func (amount Amount) Times(count int) (Amount, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: negative multiplier", ErrInvalidAmount)
	}
	if count == 0 || amount == 0 {
		return 0, nil
	}
	if int64(amount) > math.MaxInt64/int64(count) {
		return 0, fmt.Errorf("%w: multiplication overflow", ErrInvalidAmount)
	}
	return amount * Amount(count), nil
}

// SlotID identifies one numbered slot of a property (1-based).
type SlotID int

// NewSlotID validates an id against the property's slot count.
func NewSlotID(raw int64, totalSlots int) (SlotID, error) {
	if raw < 1 || raw > int64(totalSlots) {
		return 0, fmt.Errorf("%w: %d outside 1..%d", ErrInvalidSlotID, raw, totalSlots)
	}
	return SlotID(raw), nil
}

// Int returns the raw id.
func (id SlotID) Int() int {
	return int(id)
}

// PropertyStatus defines whether a property is open for purchases.
type PropertyStatus string

const (
	PropertyStatusActive   PropertyStatus = "active"
	PropertyStatusInactive PropertyStatus = "inactive"
)

// Property holds the terms of a tokenized asset.
type Property struct {
	Address      Address
	SlotContract Address
	PricePerSlot Amount
	FeePerSlot   Amount
	Status       PropertyStatus
	TotalSlots   int
}

// IsActive reports whether purchases are allowed.
func (property Property) IsActive() bool {
	return property.Status == PropertyStatusActive
}

// SlotState is one entry of the inventory view.
type SlotState struct {
	ID   SlotID
	Sold bool
}

// TxHash references a submitted ledger transaction.
type TxHash struct {
	value string
}

// NewTxHash validates a 0x-prefixed 32-byte hex hash.
func NewTxHash(raw string) (TxHash, error) {
	normalized, err := normalizeHash(raw)
	if err != nil {
		return TxHash{}, fmt.Errorf("%w: %v", ErrInvalidTxHash, err)
	}
	return TxHash{value: normalized}, nil
}

// String returns the lower-case 0x form.
func (hash TxHash) String() string {
	return hash.value
}

// IsZero reports whether the hash is unset.
func (hash TxHash) IsZero() bool {
	return hash.value == ""
}

// PromoHash identifies promo terms on the ledger.
type PromoHash [32]byte

// NewPromoHash decodes a 0x-prefixed 32-byte hex string.
func NewPromoHash(raw string) (PromoHash, error) {
	normalized, err := normalizeHash(raw)
	if err != nil {
		return PromoHash{}, fmt.Errorf("%w: %v", ErrInvalidPromoHash, err)
	}
	decoded, _ := hex.DecodeString(normalized[2:])
	var hash PromoHash
	copy(hash[:], decoded)
	return hash, nil
}

// Hex returns the lower-case 0x form.
func (hash PromoHash) Hex() string {
	return "0x" + hex.EncodeToString(hash[:])
}

// IsZero reports whether the hash is all zeros.
func (hash PromoHash) IsZero() bool {
	return hash == PromoHash{}
}

func normalizeHash(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(trimmed, "0x") {
		return "", fmt.Errorf("missing 0x prefix")
	}
	if len(trimmed)-2 != hashHexLength {
		return "", fmt.Errorf("expected %d hex characters, got %d", hashHexLength, len(trimmed)-2)
	}
	if _, err := hex.DecodeString(trimmed[2:]); err != nil {
		return "", fmt.Errorf("not hex")
	}
	return trimmed, nil
}

// Signature is the signing service's proof for a promo code.
type Signature []byte

// NewSignature decodes a hex signature; empty input is rejected.
func NewSignature(raw string) (Signature, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrMissingSignatureData)
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: signature not hex", ErrMissingSignatureData)
	}
	return Signature(decoded), nil
}

// Hex returns the 0x form.
func (signature Signature) Hex() string {
	return "0x" + hex.EncodeToString(signature)
}

// DiscountRate is a discount in basis points of DiscountScale, within (0, 1].
type DiscountRate int64

// NewDiscountRate validates an on-chain fixed-point percent.
func NewDiscountRate(raw int64) (DiscountRate, error) {
	if raw <= 0 || raw > DiscountScale {
		return 0, fmt.Errorf("%w: %d outside 1..%d", ErrInvalidDiscountRange, raw, DiscountScale)
	}
	return DiscountRate(raw), nil
}

// String renders the rate as a percentage, e.g. "10%" or "12.5%".
func (rate DiscountRate) String() string {
	whole := int64(rate) / 100
	fraction := int64(rate) % 100
	if fraction == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%02d", whole, fraction), "0") + "%"
}

// PromoTerms are the ledger-side terms for a promo hash.
type PromoTerms struct {
	Percent          int64
	MaxUse           int64
	MaxUsePerWallet  int64
	ExpiresAtUnixUTC int64
}

// PromoCredential is a verified discount usable in a purchase.
type PromoCredential struct {
	Code      string
	Signature Signature
	PromoHash PromoHash
	Discount  DiscountRate
}

// MatchesCode reports whether the credential was derived from the given code text.
func (credential *PromoCredential) MatchesCode(code string) bool {
	if credential == nil {
		return false
	}
	return credential.Code == normalizePromoCode(code)
}

func normalizePromoCode(raw string) string {
	return strings.TrimSpace(raw)
}

// Step enumerates the purchase session states.
type Step string

const (
	StepSelect     Step = "select"
	StepConfirm    Step = "confirm"
	StepProcessing Step = "processing"
	StepSuccess    Step = "success"
	StepError      Step = "error"
)

// AllowanceState is the spend authorization view for the current requirement.
type AllowanceState struct {
	Owner         Address
	Spender       Address
	Allowance     Amount
	Required      Amount
	NeedsApproval bool
}
