package purchase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PromoValidator turns a typed code into a verified credential using the
// signing service and the ledger's promo terms.
type PromoValidator struct {
	signer  PromoSigner
	gateway LedgerGateway
	nowFn   func() int64
}

// NewPromoValidator wires a PromoValidator.
func NewPromoValidator(signer PromoSigner, gateway LedgerGateway, now func() int64) (*PromoValidator, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: signer dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &PromoValidator{signer: signer, gateway: gateway, nowFn: now}, nil
}

// Validate runs the two dependent calls. Every failure wraps ErrPromoInvalid.
func (validator *PromoValidator) Validate(ctx context.Context, wallet Address, code string) (PromoCredential, error) {
	normalized := normalizePromoCode(code)
	if normalized == "" {
		return PromoCredential{}, fmt.Errorf("%w: empty code", ErrPromoInvalid)
	}
	if wallet.IsZero() {
		return PromoCredential{}, fmt.Errorf("%w: %w", ErrPromoInvalid, ErrWalletNotConnected)
	}
	signed, err := validator.signer.Sign(ctx, wallet, normalized)
	if err != nil {
		return PromoCredential{}, fmt.Errorf("%w: %w: %v", ErrPromoInvalid, ErrMissingSignatureData, err)
	}
	if strings.TrimSpace(signed.Signature) == "" || strings.TrimSpace(signed.PromoHash) == "" {
		return PromoCredential{}, fmt.Errorf("%w: %w", ErrPromoInvalid, ErrMissingSignatureData)
	}
	signature, err := NewSignature(signed.Signature)
	if err != nil {
		return PromoCredential{}, fmt.Errorf("%w: %w", ErrPromoInvalid, err)
	}
	promoHash, err := NewPromoHash(signed.PromoHash)
	if err != nil {
		return PromoCredential{}, fmt.Errorf("%w: %w: %w", ErrPromoInvalid, ErrMissingSignatureData, err)
	}
	terms, err := validator.gateway.GetPromoCodeTerms(ctx, promoHash)
	if err != nil {
		return PromoCredential{}, fmt.Errorf("%w: %w", ErrPromoInvalid, err)
	}
	discount, err := NewDiscountRate(terms.Percent)
	if err != nil {
		return PromoCredential{}, fmt.Errorf("%w: %w", ErrPromoInvalid, err)
	}
	if terms.ExpiresAtUnixUTC > 0 && validator.nowFn() >= terms.ExpiresAtUnixUTC {
		return PromoCredential{}, fmt.Errorf("%w: %w", ErrPromoInvalid, ErrPromoExpired)
	}
	return PromoCredential{
		Code:      normalized,
		Signature: signature,
		PromoHash: promoHash,
		Discount:  discount,
	}, nil
}

// PromoResult is delivered once per accepted validation. A nil Credential with
// a nil Err means the code was cleared.
type PromoResult struct {
	Code       string
	Credential *PromoCredential
	Err        error
}

// PromoDebouncer delays validation until typing pauses and drops results for
// superseded code strings.
type PromoDebouncer struct {
	validator *PromoValidator
	scheduler Scheduler
	quiet     time.Duration
	spawn     func(task func())
	onResult  func(PromoResult)

	mutex         sync.Mutex
	generation    uint64
	cancelTimer   CancelFunc
	cancelRequest context.CancelFunc
}

// PromoDebouncerOption configures a PromoDebouncer.
type PromoDebouncerOption func(*PromoDebouncer)

// WithQuietPeriod overrides DefaultPromoDebounce.
func WithQuietPeriod(quiet time.Duration) PromoDebouncerOption {
	return func(debouncer *PromoDebouncer) {
		if quiet > 0 {
			debouncer.quiet = quiet
		}
	}
}

// WithSpawner controls how validation requests are started in the background.
func WithSpawner(spawn func(task func())) PromoDebouncerOption {
	return func(debouncer *PromoDebouncer) {
		if spawn != nil {
			debouncer.spawn = spawn
		}
	}
}

// NewPromoDebouncer wires a debouncer delivering accepted results to onResult.
func NewPromoDebouncer(validator *PromoValidator, scheduler Scheduler, onResult func(PromoResult), options ...PromoDebouncerOption) (*PromoDebouncer, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: validator dependency is nil", ErrInvalidServiceConfig)
	}
	if scheduler == nil {
		return nil, fmt.Errorf("%w: scheduler dependency is nil", ErrInvalidServiceConfig)
	}
	if onResult == nil {
		return nil, fmt.Errorf("%w: result callback is nil", ErrInvalidServiceConfig)
	}
	debouncer := &PromoDebouncer{
		validator: validator,
		scheduler: scheduler,
		quiet:     DefaultPromoDebounce,
		spawn:     func(task func()) { go task() },
		onResult:  onResult,
	}
	for _, option := range options {
		if option != nil {
			option(debouncer)
		}
	}
	return debouncer, nil
}

// Enter records a new code value. An empty code clears immediately without
// contacting the service; any other value restarts the quiet period.
func (debouncer *PromoDebouncer) Enter(ctx context.Context, wallet Address, code string) {
	normalized := normalizePromoCode(code)
	debouncer.mutex.Lock()
	generation := debouncer.supersedeLocked()
	if normalized == "" {
		debouncer.mutex.Unlock()
		debouncer.onResult(PromoResult{})
		return
	}
	debouncer.cancelTimer = debouncer.scheduler.AfterFunc(debouncer.quiet, func() {
		debouncer.fire(ctx, generation, wallet, normalized)
	})
	debouncer.mutex.Unlock()
}

// Stop cancels the pending timer and any in-flight request.
func (debouncer *PromoDebouncer) Stop() {
	debouncer.mutex.Lock()
	debouncer.supersedeLocked()
	debouncer.mutex.Unlock()
}

func (debouncer *PromoDebouncer) supersedeLocked() uint64 {
	debouncer.generation++
	if debouncer.cancelTimer != nil {
		debouncer.cancelTimer()
		debouncer.cancelTimer = nil
	}
	if debouncer.cancelRequest != nil {
		debouncer.cancelRequest()
		debouncer.cancelRequest = nil
	}
	return debouncer.generation
}

func (debouncer *PromoDebouncer) fire(ctx context.Context, generation uint64, wallet Address, code string) {
	debouncer.mutex.Lock()
	if generation != debouncer.generation {
		debouncer.mutex.Unlock()
		return
	}
	requestCtx, cancel := context.WithCancel(ctx)
	debouncer.cancelRequest = cancel
	debouncer.mutex.Unlock()

	debouncer.spawn(func() {
		defer cancel()
		credential, err := debouncer.validator.Validate(requestCtx, wallet, code)
		debouncer.mutex.Lock()
		current := generation == debouncer.generation
		debouncer.mutex.Unlock()
		if !current {
			return
		}
		result := PromoResult{Code: code, Err: err}
		if err == nil {
			result.Credential = &credential
		}
		debouncer.onResult(result)
	})
}
