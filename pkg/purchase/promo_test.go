package purchase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestValidator(test *testing.T, gateway *stubGateway, signer *stubSigner, now int64) *PromoValidator {
	test.Helper()
	validator, err := NewPromoValidator(signer, gateway, func() int64 { return now })
	if err != nil {
		test.Fatalf("validator init failed: %v", err)
	}
	return validator
}

func TestPromoValidatorProducesCredential(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	validator := newTestValidator(test, gateway, newStubSigner(), 100)
	credential, err := validator.Validate(context.Background(), mustAddress(test, walletAddressValue), "  "+promoCodeValue+" ")
	if err != nil {
		test.Fatalf("validate failed: %v", err)
	}
	if credential.Code != promoCodeValue || credential.Discount != 1_000 {
		test.Fatalf("unexpected credential %+v", credential)
	}
	if credential.PromoHash != mustPromoHash(test, promoHashValue) || credential.Signature.Hex() != signatureValue {
		test.Fatalf("unexpected credential proof %+v", credential)
	}
	if !credential.MatchesCode(promoCodeValue + " ") {
		test.Fatalf("expected code match after trimming")
	}
}

func TestPromoValidatorFailuresWrapPromoInvalid(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(gateway *stubGateway, signer *stubSigner)
		wallet    string
		code      string
		wantErr   error
	}{
		{
			name:      "empty code",
			configure: func(*stubGateway, *stubSigner) {},
			code:      " ",
			wantErr:   ErrPromoInvalid,
		},
		{
			name:      "no wallet",
			configure: func(*stubGateway, *stubSigner) {},
			wallet:    "-",
			wantErr:   ErrWalletNotConnected,
		},
		{
			name:      "signer failure",
			configure: func(_ *stubGateway, signer *stubSigner) { signer.err = errGatewayFailure },
			wantErr:   ErrMissingSignatureData,
		},
		{
			name:      "missing signature",
			configure: func(_ *stubGateway, signer *stubSigner) { signer.response.Signature = "" },
			wantErr:   ErrMissingSignatureData,
		},
		{
			name:      "missing promo hash",
			configure: func(_ *stubGateway, signer *stubSigner) { signer.response.PromoHash = "" },
			wantErr:   ErrMissingSignatureData,
		},
		{
			name:      "malformed promo hash",
			configure: func(_ *stubGateway, signer *stubSigner) { signer.response.PromoHash = "0x12" },
			wantErr:   ErrInvalidPromoHash,
		},
		{
			name:      "terms read failure",
			configure: func(gateway *stubGateway, _ *stubSigner) { gateway.termsErr = errGatewayFailure },
			wantErr:   errGatewayFailure,
		},
		{
			name:      "zero percent",
			configure: func(gateway *stubGateway, _ *stubSigner) { gateway.terms.Percent = 0 },
			wantErr:   ErrInvalidDiscountRange,
		},
		{
			name:      "percent above one",
			configure: func(gateway *stubGateway, _ *stubSigner) { gateway.terms.Percent = DiscountScale + 1 },
			wantErr:   ErrInvalidDiscountRange,
		},
		{
			name:      "expired",
			configure: func(gateway *stubGateway, _ *stubSigner) { gateway.terms.ExpiresAtUnixUTC = 100 },
			wantErr:   ErrPromoExpired,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			gateway := newStubGateway(test)
			signer := newStubSigner()
			testCase.configure(gateway, signer)
			validator := newTestValidator(test, gateway, signer, 100)
			wallet := Address{}
			if testCase.wallet == "" {
				wallet = mustAddress(test, walletAddressValue)
			}
			code := promoCodeValue
			if testCase.code != "" {
				code = testCase.code
			}
			_, err := validator.Validate(context.Background(), wallet, code)
			if !errors.Is(err, ErrPromoInvalid) {
				test.Fatalf("expected ErrPromoInvalid, got %v", err)
			}
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
		})
	}
}

type debouncerFixture struct {
	debouncer *PromoDebouncer
	scheduler *ManualScheduler
	signer    *stubSigner
	group     *sync.WaitGroup

	mutex   *sync.Mutex
	results *[]PromoResult
}

func newDebouncerFixture(test *testing.T) debouncerFixture {
	test.Helper()
	fixture := debouncerFixture{
		scheduler: NewManualScheduler(time.Unix(0, 0)),
		signer:    newStubSigner(),
		group:     &sync.WaitGroup{},
		mutex:     &sync.Mutex{},
		results:   &[]PromoResult{},
	}
	validator := newTestValidator(test, newStubGateway(test), fixture.signer, 100)
	spawn := func(task func()) {
		fixture.group.Add(1)
		go func() {
			defer fixture.group.Done()
			task()
		}()
	}
	onResult := func(result PromoResult) {
		fixture.mutex.Lock()
		defer fixture.mutex.Unlock()
		*fixture.results = append(*fixture.results, result)
	}
	debouncer, err := NewPromoDebouncer(validator, fixture.scheduler, onResult, WithSpawner(spawn))
	if err != nil {
		test.Fatalf("debouncer init failed: %v", err)
	}
	fixture.debouncer = debouncer
	return fixture
}

func (fixture debouncerFixture) delivered() []PromoResult {
	fixture.group.Wait()
	fixture.mutex.Lock()
	defer fixture.mutex.Unlock()
	return append([]PromoResult(nil), (*fixture.results)...)
}

func TestDebouncerValidatesOnlyAfterQuietPeriod(test *testing.T) {
	test.Parallel()
	fixture := newDebouncerFixture(test)
	wallet := mustAddress(test, walletAddressValue)
	ctx := context.Background()

	fixture.debouncer.Enter(ctx, wallet, "S")
	fixture.scheduler.Advance(200 * time.Millisecond)
	fixture.debouncer.Enter(ctx, wallet, "SA")
	fixture.scheduler.Advance(200 * time.Millisecond)
	fixture.debouncer.Enter(ctx, wallet, "SAVE")
	fixture.scheduler.Advance(DefaultPromoDebounce - time.Millisecond)
	if codes := fixture.signer.requestedCodes(); len(codes) != 0 {
		test.Fatalf("expected no request during typing, got %v", codes)
	}
	fixture.scheduler.Advance(time.Millisecond)
	results := fixture.delivered()

	if codes := fixture.signer.requestedCodes(); !reflect.DeepEqual(codes, []string{"SAVE"}) {
		test.Fatalf("expected one request for SAVE, got %v", codes)
	}
	if len(results) != 1 || results[0].Code != "SAVE" || results[0].Credential == nil {
		test.Fatalf("unexpected results %+v", results)
	}
}

func TestDebouncerEmptyCodeClearsSynchronously(test *testing.T) {
	test.Parallel()
	fixture := newDebouncerFixture(test)
	wallet := mustAddress(test, walletAddressValue)
	fixture.debouncer.Enter(context.Background(), wallet, promoCodeValue)
	fixture.debouncer.Enter(context.Background(), wallet, "")

	results := fixture.delivered()
	if len(results) != 1 || results[0].Code != "" || results[0].Credential != nil || results[0].Err != nil {
		test.Fatalf("expected a single clear result, got %+v", results)
	}
	if fixture.scheduler.Pending() != 0 {
		test.Fatalf("expected pending validation cancelled")
	}
	fixture.scheduler.Advance(DefaultPromoDebounce)
	if codes := fixture.signer.requestedCodes(); len(codes) != 0 {
		test.Fatalf("expected no requests, got %v", codes)
	}
}

func TestDebouncerDiscardsSupersededResponse(test *testing.T) {
	test.Parallel()
	fixture := newDebouncerFixture(test)
	gate := make(chan struct{})
	fixture.signer.gate = gate
	wallet := mustAddress(test, walletAddressValue)

	fixture.debouncer.Enter(context.Background(), wallet, "OLD")
	fixture.scheduler.Advance(DefaultPromoDebounce)
	fixture.debouncer.Enter(context.Background(), wallet, "NEW")
	close(gate)
	fixture.scheduler.Advance(DefaultPromoDebounce)

	results := fixture.delivered()
	if len(results) != 1 || results[0].Code != "NEW" {
		test.Fatalf("expected only NEW result, got %+v", results)
	}
}

func TestDebouncerStopCancelsPendingWork(test *testing.T) {
	test.Parallel()
	fixture := newDebouncerFixture(test)
	fixture.debouncer.Enter(context.Background(), mustAddress(test, walletAddressValue), promoCodeValue)
	fixture.debouncer.Stop()
	fixture.scheduler.Advance(DefaultPromoDebounce)
	if results := fixture.delivered(); len(results) != 0 {
		test.Fatalf("expected no results after stop, got %+v", results)
	}
}
