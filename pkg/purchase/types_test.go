package purchase

import (
	"errors"
	"math/big"
	"testing"
)

func TestNewAddressValidatesChecksum(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "checksummed", raw: propertyAddressValue},
		{name: "lower case", raw: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{name: "upper case", raw: "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED"},
		{name: "bad checksum", raw: "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed", wantErr: ErrInvalidAddress},
		{name: "missing prefix", raw: "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", wantErr: ErrInvalidAddress},
		{name: "short", raw: "0x5aAeb6053F", wantErr: ErrInvalidAddress},
		{name: "not hex", raw: "0xzzzeb6053f3e94c9b9a09f33669435e7ef1beaed", wantErr: ErrInvalidAddress},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			address, err := NewAddress(testCase.raw)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if address.String() != propertyAddressValue {
				test.Fatalf(errorMismatchMessage, propertyAddressValue, address.String())
			}
			if address.Hex() != "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed" {
				test.Fatalf("unexpected lower form %s", address.Hex())
			}
		})
	}
}

func TestAmountFromBigRejectsOutOfRange(test *testing.T) {
	test.Parallel()
	if _, err := AmountFromBig(big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf(errorMismatchMessage, ErrInvalidAmount, err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	if _, err := AmountFromBig(huge); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf(errorMismatchMessage, ErrInvalidAmount, err)
	}
	amount, err := AmountFromBig(big.NewInt(1_800_000))
	if err != nil || amount != 1_800_000 {
		test.Fatalf("expected 1800000, got %d (%v)", amount, err)
	}
}

func TestNewSlotIDBounds(test *testing.T) {
	test.Parallel()
	for _, raw := range []int64{0, -1, 11} {
		if _, err := NewSlotID(raw, 10); !errors.Is(err, ErrInvalidSlotID) {
			test.Fatalf("id %d: expected ErrInvalidSlotID, got %v", raw, err)
		}
	}
	if id, err := NewSlotID(10, 10); err != nil || id != 10 {
		test.Fatalf("expected id 10, got %d (%v)", id, err)
	}
}

func TestHashesNormalize(test *testing.T) {
	test.Parallel()
	upper := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	txHash, err := NewTxHash(upper)
	if err != nil {
		test.Fatalf("tx hash: %v", err)
	}
	if txHash.String() != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		test.Fatalf("unexpected tx hash %s", txHash)
	}
	if _, err := NewTxHash("0x1234"); !errors.Is(err, ErrInvalidTxHash) {
		test.Fatalf(errorMismatchMessage, ErrInvalidTxHash, err)
	}
	promoHash := mustPromoHash(test, promoHashValue)
	if promoHash.Hex() != promoHashValue || promoHash.IsZero() {
		test.Fatalf("unexpected promo hash %s", promoHash.Hex())
	}
	if _, err := NewPromoHash("nope"); !errors.Is(err, ErrInvalidPromoHash) {
		test.Fatalf(errorMismatchMessage, ErrInvalidPromoHash, err)
	}
}

func TestNewSignatureRequiresData(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", "0x", "  ", "0xzz"} {
		if _, err := NewSignature(raw); !errors.Is(err, ErrMissingSignatureData) {
			test.Fatalf("signature %q: expected ErrMissingSignatureData, got %v", raw, err)
		}
	}
	signature, err := NewSignature(signatureValue)
	if err != nil || signature.Hex() != signatureValue {
		test.Fatalf("unexpected signature %s (%v)", signature.Hex(), err)
	}
}

func TestDiscountRateRange(test *testing.T) {
	test.Parallel()
	for _, raw := range []int64{0, -5, DiscountScale + 1} {
		if _, err := NewDiscountRate(raw); !errors.Is(err, ErrInvalidDiscountRange) {
			test.Fatalf("rate %d: expected ErrInvalidDiscountRange, got %v", raw, err)
		}
	}
	testCases := map[int64]string{1_000: "10%", 1_250: "12.5%", 10_000: "100%", 5: "0.05%"}
	for raw, want := range testCases {
		rate, err := NewDiscountRate(raw)
		if err != nil {
			test.Fatalf("rate %d: %v", raw, err)
		}
		if rate.String() != want {
			test.Fatalf("rate %d: expected %s, got %s", raw, want, rate.String())
		}
	}
}

func TestTransactionRevertedErrorUnwraps(test *testing.T) {
	test.Parallel()
	err := error(TransactionRevertedError{Reason: "Slot already sold"})
	if !errors.Is(err, ErrTransactionReverted) {
		test.Fatalf("expected revert sentinel")
	}
	if err.Error() != "transaction reverted: Slot already sold" {
		test.Fatalf("unexpected message %q", err.Error())
	}
	if (TransactionRevertedError{}).Error() != ErrTransactionReverted.Error() {
		test.Fatalf("expected bare sentinel text")
	}
}

func TestWrapErrorExposesSegments(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("chain", "buy", "submit_failed", ErrGatewayUnavailable)
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError")
	}
	if operationError.Operation() != "chain" || operationError.Subject() != "buy" || operationError.Code() != "submit_failed" {
		test.Fatalf("unexpected segments %+v", operationError)
	}
	if !errors.Is(wrapped, ErrGatewayUnavailable) {
		test.Fatalf("expected wrapped sentinel")
	}
	if WrapError("a", "b", "c", nil) != nil {
		test.Fatalf("expected nil for nil error")
	}
}
