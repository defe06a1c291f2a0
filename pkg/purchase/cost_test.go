package purchase

import (
	"errors"
	"testing"
)

func TestFormatAmount(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		amount Amount
		want   string
	}{
		{amount: 0, want: "0"},
		{amount: 2_000_000, want: "2"},
		{amount: 1_800_000, want: "1.80"},
		{amount: 1_500_000, want: "1.50"},
		{amount: 1_234_500, want: "1.2345"},
		{amount: 1, want: "0.000001"},
		{amount: 10_050_000, want: "10.05"},
	}
	for _, testCase := range testCases {
		if got := FormatAmount(testCase.amount); got != testCase.want {
			test.Fatalf("FormatAmount(%d): expected %q, got %q", testCase.amount, testCase.want, got)
		}
	}
}

func TestParseAmount(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw     string
		want    Amount
		wantErr bool
	}{
		{raw: "2", want: 2_000_000},
		{raw: "1.50", want: 1_500_000},
		{raw: ".5", want: 500_000},
		{raw: "0.000001", want: 1},
		{raw: "", wantErr: true},
		{raw: "1.", wantErr: true},
		{raw: "1.0000001", wantErr: true},
		{raw: "-1", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, testCase := range testCases {
		got, err := ParseAmount(testCase.raw)
		if testCase.wantErr {
			if !errors.Is(err, ErrInvalidAmount) {
				test.Fatalf("ParseAmount(%q): expected ErrInvalidAmount, got %v", testCase.raw, err)
			}
			continue
		}
		if err != nil || got != testCase.want {
			test.Fatalf("ParseAmount(%q): expected %d, got %d (%v)", testCase.raw, testCase.want, got, err)
		}
	}
}

func TestTotalCostIsMonotonicInCount(test *testing.T) {
	test.Parallel()
	property := Property{PricePerSlot: 1_000_000, FeePerSlot: 25_000, Status: PropertyStatusActive, TotalSlots: 50}
	previous := Amount(-1)
	for count := 0; count <= property.TotalSlots; count++ {
		total, err := TotalCost(property, count)
		if err != nil {
			test.Fatalf("total cost for %d: %v", count, err)
		}
		if total <= previous {
			test.Fatalf("cost not increasing at %d: %d <= %d", count, total, previous)
		}
		previous = total
	}
	if previous != 51_250_000 {
		test.Fatalf("expected 51.25 for 50 slots, got %s", FormatAmount(previous))
	}
}

func TestTotalCostRejectsOverflow(test *testing.T) {
	test.Parallel()
	property := Property{PricePerSlot: Amount(1 << 62), FeePerSlot: 0}
	if _, err := TotalCost(property, 4); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf(errorMismatchMessage, ErrInvalidAmount, err)
	}
}

func TestDiscountedTotalStaysWithinBounds(test *testing.T) {
	test.Parallel()
	property := Property{PricePerSlot: 1_000_000, Status: PropertyStatusActive, TotalSlots: 10}
	credential := &PromoCredential{Code: promoCodeValue, PromoHash: mustPromoHash(test, promoHashValue), Discount: 1_000}
	otherHash := mustPromoHash(test, "0x2222222222222222222222222222222222222222222222222222222222222222")
	quoted := func(count int, hash PromoHash, discounted Amount) *CostQuote {
		return &CostQuote{Key: QuoteKey{Count: count, PromoHash: hash}, Base: 0, Discounted: &discounted}
	}
	testCases := []struct {
		name       string
		credential *PromoCredential
		quote      *CostQuote
		want       Amount
	}{
		{name: "matching quote", credential: credential, quote: quoted(2, credential.PromoHash, 1_800_000), want: 1_800_000},
		{name: "no credential", credential: nil, quote: quoted(2, credential.PromoHash, 1_800_000), want: 2_000_000},
		{name: "no quote", credential: credential, quote: nil, want: 2_000_000},
		{name: "quote for other count", credential: credential, quote: quoted(3, credential.PromoHash, 1_800_000), want: 2_000_000},
		{name: "quote for other promo", credential: credential, quote: quoted(2, otherHash, 1_800_000), want: 2_000_000},
		{name: "quote above total", credential: credential, quote: quoted(2, credential.PromoHash, 2_500_000), want: 2_000_000},
		{name: "zero quote", credential: credential, quote: quoted(2, credential.PromoHash, 0), want: 2_000_000},
		{name: "quote equal to total", credential: credential, quote: quoted(2, credential.PromoHash, 2_000_000), want: 2_000_000},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			got, err := DiscountedTotal(property, 2, testCase.credential, testCase.quote)
			if err != nil {
				test.Fatalf("discounted total: %v", err)
			}
			if got != testCase.want {
				test.Fatalf(errorMismatchMessage, testCase.want, got)
			}
			if got <= 0 || got > 2_000_000 {
				test.Fatalf("discounted total %d outside (0, total]", got)
			}
		})
	}
}
