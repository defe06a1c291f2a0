package pgstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/internal/journal"
	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	walletValue    = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	propertyValue  = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	promoHashValue = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func mustTxHash(test *testing.T, sequence int) purchase.TxHash {
	test.Helper()
	hash, err := purchase.NewTxHash(fmt.Sprintf("0x%064x", sequence))
	if err != nil {
		test.Fatalf("tx hash: %v", err)
	}
	return hash
}

func TestInsertArgumentsDefaults(test *testing.T) {
	test.Parallel()
	now := time.Unix(1_700_000_000, 0).UTC()
	arguments, err := insertArguments(journal.Submission{
		Wallet:   purchase.MustAddress(walletValue),
		Property: purchase.MustAddress(propertyValue),
		Kind:     journal.KindBuy,
		TxHash:   mustTxHash(test, 1),
		Amount:   2_000_000,
		Slots:    []purchase.SlotID{3, 7},
	}, now)
	if err != nil {
		test.Fatalf("arguments failed: %v", err)
	}
	if len(arguments) != 12 {
		test.Fatalf("expected twelve arguments, got %d", len(arguments))
	}
	if arguments[6] != "[3,7]" {
		test.Fatalf("unexpected slots json %v", arguments[6])
	}
	if promoHash, ok := arguments[7].(*string); !ok || promoHash != nil {
		test.Fatalf("expected nil promo hash, got %v", arguments[7])
	}
	if arguments[8] != string(journal.StatusPending) {
		test.Fatalf("expected pending status, got %v", arguments[8])
	}
	if arguments[10] != now || arguments[11] != now {
		test.Fatalf("expected timestamps to default to now, got %v %v", arguments[10], arguments[11])
	}
}

func TestSubmissionRowMapping(test *testing.T) {
	test.Parallel()
	promoHash := promoHashValue
	created := time.Unix(1_700_000_000, 0)
	row := submissionRow{
		id:        "7d7b8a4e-2f9c-4b7a-9a53-0f1c0b7f5e21",
		wallet:    walletValue,
		property:  propertyValue,
		kind:      string(journal.KindBuyWithPromo),
		txHash:    mustTxHash(test, 2).String(),
		amount:    1_800_000,
		slotsJSON: "[1, 4]",
		promoHash: &promoHash,
		status:    string(journal.StatusConfirmed),
		createdAt: created,
		updatedAt: created,
	}
	submission, err := row.submission()
	if err != nil {
		test.Fatalf("mapping failed: %v", err)
	}
	if submission.Kind != journal.KindBuyWithPromo || submission.Status != journal.StatusConfirmed || submission.Amount != 1_800_000 {
		test.Fatalf("unexpected submission %+v", submission)
	}
	if len(submission.Slots) != 2 || submission.Slots[1] != 4 {
		test.Fatalf("unexpected slots %v", submission.Slots)
	}
	if submission.PromoHash == nil || submission.PromoHash.Hex() != promoHashValue {
		test.Fatalf("unexpected promo hash %v", submission.PromoHash)
	}

	row.kind = "refund"
	if _, err := row.submission(); !errors.Is(err, journal.ErrInvalidKind) {
		test.Fatalf("expected ErrInvalidKind, got %v", err)
	}
}

func TestIsTxHashConflict(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "tx hash unique", err: &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintSubmissionTxHash}, want: true},
		{name: "other constraint", err: &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: "purchase_submissions_pkey"}, want: false},
		{name: "wrapped", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolationCode, ConstraintName: constraintSubmissionTxHash}), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if got := isTxHashConflict(testCase.err); got != testCase.want {
				test.Fatalf("expected %v, got %v", testCase.want, got)
			}
		})
	}
}

func TestNormalizeListLimit(test *testing.T) {
	test.Parallel()
	if normalizeListLimit(0) != defaultListLimit || normalizeListLimit(1_000) != maxListLimit || normalizeListLimit(7) != 7 {
		test.Fatalf("unexpected limit normalization")
	}
}
