package purchase

import (
	"fmt"
	"strconv"
	"strings"
)

// QuoteKey identifies the inputs a ledger quote was computed for.
type QuoteKey struct {
	Count     int
	PromoHash PromoHash
}

// CostQuote pairs the local base cost with the ledger's discounted cost, if any.
type CostQuote struct {
	Key        QuoteKey
	Base       Amount
	Discounted *Amount
}

// quoteKeyFor returns the key for a selection size and optional credential.
func quoteKeyFor(count int, credential *PromoCredential) QuoteKey {
	key := QuoteKey{Count: count}
	if credential != nil {
		key.PromoHash = credential.PromoHash
	}
	return key
}

// PerSlotCost returns price plus fee for one slot.
func PerSlotCost(property Property) (Amount, error) {
	return property.PricePerSlot.Add(property.FeePerSlot)
}

// TotalCost returns the undiscounted cost of count slots.
func TotalCost(property Property, count int) (Amount, error) {
	perSlot, err := PerSlotCost(property)
	if err != nil {
		return 0, err
	}
	return perSlot.Times(count)
}

// DiscountedTotal returns the ledger-quoted discounted cost when the quote was
// computed for exactly (count, credential) and lies within (0, total].
// Otherwise it falls back to the undiscounted total.
func DiscountedTotal(property Property, count int, credential *PromoCredential, quote *CostQuote) (Amount, error) {
	total, err := TotalCost(property, count)
	if err != nil {
		return 0, err
	}
	if credential == nil || quote == nil || quote.Discounted == nil {
		return total, nil
	}
	if quote.Key != quoteKeyFor(count, credential) {
		return total, nil
	}
	discounted := *quote.Discounted
	if discounted <= 0 || discounted > total {
		return total, nil
	}
	return discounted, nil
}

// EffectiveCost is the amount a purchase of the quote's selection will spend.
func EffectiveCost(property Property, count int, credential *PromoCredential, quote *CostQuote) (Amount, error) {
	if credential == nil {
		return TotalCost(property, count)
	}
	return DiscountedTotal(property, count, credential, quote)
}

// FormatAmount renders minor units as display units. Whole values carry no
// decimals; other values keep at least two decimals with trailing zeros
// beyond the second trimmed.
func FormatAmount(amount Amount) string {
	value := amount.Int64()
	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}
	whole := value / AmountScale
	fraction := value % AmountScale
	if fraction == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	digits := fmt.Sprintf("%0*d", amountDecimals, fraction)
	digits = strings.TrimRight(digits, "0")
	for len(digits) < 2 {
		digits += "0"
	}
	return sign + strconv.FormatInt(whole, 10) + "." + digits
}

// ParseAmount converts a display string such as "1.5" into minor units.
func ParseAmount(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	wholePart, fractionPart, hasFraction := strings.Cut(trimmed, ".")
	if wholePart == "" {
		wholePart = "0"
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil || whole < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	var fraction int64
	if hasFraction {
		if len(fractionPart) == 0 || len(fractionPart) > amountDecimals {
			return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, raw, amountDecimals)
		}
		padded := fractionPart + strings.Repeat("0", amountDecimals-len(fractionPart))
		fraction, err = strconv.ParseInt(padded, 10, 64)
		if err != nil || fraction < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	scaled, err := Amount(whole).Times(int(AmountScale))
	if err != nil {
		return 0, err
	}
	return scaled.Add(Amount(fraction))
}
