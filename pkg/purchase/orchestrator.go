package purchase

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Orchestrator owns one purchase session for one property: selection, promo
// state, cost and allowance views, and the approve → buy sequence.
type Orchestrator struct {
	propertyAddress Address
	gateway         LedgerGateway
	session         Session
	inventory       *SlotInventory
	approvals       *ApprovalManager
	validator       *PromoValidator
	debouncer       *PromoDebouncer
	gallery         Gallery
	scheduler       Scheduler
	logger          OperationLogger
	nowFn           func() int64

	promoQuiet          time.Duration
	settleDelay         time.Duration
	balancePollInterval time.Duration
	supplyPollInterval  time.Duration

	spawnMutex sync.Mutex
	stopped    bool
	background sync.WaitGroup

	mutex          sync.Mutex
	lifetime       context.Context
	cancelLifetime context.CancelFunc
	mounted        bool
	propertyLoaded bool
	property       Property
	galleryLoaded  bool
	images         []string
	watchers       []CancelFunc
	settleCancel   CancelFunc
	lastSupply     int64
	supplyKnown    bool
	token          uint64
	state          sessionState
}

type sessionState struct {
	step         Step
	selection    Selection
	promoCode    string
	promoPending bool
	promoNotice  string
	credential   *PromoCredential
	quote        *CostQuote
	allowance    *AllowanceState
	balance      *Amount
	approvalTx   TxHash
	txRef        TxHash
	errorMessage string

	// Set on Select -> Confirm; Confirm refuses to submit anything else.
	confirmedKey  QuoteKey
	confirmedCost Amount
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.logger = logger
	}
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(scheduler Scheduler) Option {
	return func(orchestrator *Orchestrator) {
		if scheduler != nil {
			orchestrator.scheduler = scheduler
		}
	}
}

// WithClock replaces the unix-seconds clock used for promo expiry checks.
func WithClock(now func() int64) Option {
	return func(orchestrator *Orchestrator) {
		if now != nil {
			orchestrator.nowFn = now
		}
	}
}

// WithGallery wires the image collaborator.
func WithGallery(gallery Gallery) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.gallery = gallery
	}
}

// WithPromoDebounce overrides DefaultPromoDebounce.
func WithPromoDebounce(quiet time.Duration) Option {
	return func(orchestrator *Orchestrator) {
		if quiet > 0 {
			orchestrator.promoQuiet = quiet
		}
	}
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(delay time.Duration) Option {
	return func(orchestrator *Orchestrator) {
		if delay >= 0 {
			orchestrator.settleDelay = delay
		}
	}
}

// WithBalancePollInterval overrides DefaultBalancePollInterval. Zero disables polling.
func WithBalancePollInterval(interval time.Duration) Option {
	return func(orchestrator *Orchestrator) {
		if interval >= 0 {
			orchestrator.balancePollInterval = interval
		}
	}
}

// WithSupplyPollInterval overrides DefaultSupplyPollInterval. Zero disables the watcher.
func WithSupplyPollInterval(interval time.Duration) Option {
	return func(orchestrator *Orchestrator) {
		if interval >= 0 {
			orchestrator.supplyPollInterval = interval
		}
	}
}

// NewOrchestrator wires a session for one property.
func NewOrchestrator(propertyAddress Address, gateway LedgerGateway, session Session, signer PromoSigner, options ...Option) (*Orchestrator, error) {
	if propertyAddress.IsZero() {
		return nil, fmt.Errorf("%w: property address is empty", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session dependency is nil", ErrInvalidServiceConfig)
	}
	orchestrator := &Orchestrator{
		propertyAddress:     propertyAddress,
		gateway:             gateway,
		session:             session,
		scheduler:           NewRealScheduler(),
		nowFn:               func() int64 { return time.Now().UTC().Unix() },
		promoQuiet:          DefaultPromoDebounce,
		settleDelay:         DefaultSettleDelay,
		balancePollInterval: DefaultBalancePollInterval,
		supplyPollInterval:  DefaultSupplyPollInterval,
		state:               sessionState{step: StepSelect, selection: NewSelection()},
	}
	for _, option := range options {
		if option != nil {
			option(orchestrator)
		}
	}
	inventory, err := NewSlotInventory(gateway)
	if err != nil {
		return nil, err
	}
	approvals, err := NewApprovalManager(gateway)
	if err != nil {
		return nil, err
	}
	validator, err := NewPromoValidator(signer, gateway, orchestrator.nowFn)
	if err != nil {
		return nil, err
	}
	debouncer, err := NewPromoDebouncer(
		validator,
		orchestrator.scheduler,
		orchestrator.applyPromoResult,
		WithQuietPeriod(orchestrator.promoQuiet),
		WithSpawner(orchestrator.spawn),
	)
	if err != nil {
		return nil, err
	}
	orchestrator.inventory = inventory
	orchestrator.approvals = approvals
	orchestrator.validator = validator
	orchestrator.debouncer = debouncer
	orchestrator.lifetime, orchestrator.cancelLifetime = context.WithCancel(context.Background())
	return orchestrator, nil
}

// PropertyAddress returns the property this session serves.
func (orchestrator *Orchestrator) PropertyAddress() Address {
	return orchestrator.propertyAddress
}

// Mount loads the property (once), refreshes the inventory, and starts the
// supply and balance watchers. Read failures are logged and degrade to empty
// views; Mount itself only fails when called on a torn-down session.
func (orchestrator *Orchestrator) Mount(ctx context.Context) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	orchestrator.mutex.Lock()
	if orchestrator.mounted {
		orchestrator.mutex.Unlock()
		return nil
	}
	orchestrator.mounted = true
	orchestrator.mutex.Unlock()

	if err := orchestrator.RefreshInventory(ctx); err != nil {
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationMount,
			Property:  orchestrator.propertyAddress,
			Error:     err,
		})
	}
	orchestrator.startWatchers()
	orchestrator.triggerRecompute()
	return nil
}

// Unmount stops timers and watchers, cancels in-flight work, and waits for
// background tasks to finish. Every entry point fails with ErrInvalidStep
// afterwards and no further background work is started.
func (orchestrator *Orchestrator) Unmount() {
	orchestrator.mutex.Lock()
	watchers := orchestrator.watchers
	orchestrator.watchers = nil
	if orchestrator.settleCancel != nil {
		orchestrator.settleCancel()
		orchestrator.settleCancel = nil
	}
	orchestrator.state.selection = NewSelection()
	orchestrator.mutex.Unlock()
	for _, cancel := range watchers {
		cancel()
	}
	orchestrator.debouncer.Stop()
	orchestrator.cancelLifetime()
	orchestrator.spawnMutex.Lock()
	orchestrator.stopped = true
	orchestrator.spawnMutex.Unlock()
	orchestrator.background.Wait()
}

// Wait blocks until all background work started so far has finished.
func (orchestrator *Orchestrator) Wait() {
	orchestrator.background.Wait()
}

// ToggleSlot flips id's membership in the selection. Sold slots and toggles
// outside the select step are rejected and leave the selection unchanged.
func (orchestrator *Orchestrator) ToggleSlot(id SlotID) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	orchestrator.mutex.Lock()
	if orchestrator.state.step != StepSelect {
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: toggle requires %s, session is %s", ErrInvalidStep, StepSelect, orchestrator.state.step)
	}
	if !orchestrator.propertyLoaded {
		orchestrator.mutex.Unlock()
		return ErrPropertyNotLoaded
	}
	if _, err := NewSlotID(int64(id), orchestrator.property.TotalSlots); err != nil {
		orchestrator.mutex.Unlock()
		return err
	}
	if orchestrator.inventory.IsSold(id) {
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: slot %d", ErrSlotSold, id)
	}
	orchestrator.state.selection = orchestrator.state.selection.Toggle(id)
	orchestrator.state.quote = nil
	orchestrator.mutex.Unlock()
	orchestrator.triggerRecompute()
	return nil
}

// SetPromoCode records the promo field text. A credential derived from a
// different code is dropped at once; validation of the new code is debounced.
func (orchestrator *Orchestrator) SetPromoCode(code string) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	normalized := normalizePromoCode(code)
	orchestrator.mutex.Lock()
	if orchestrator.state.step != StepSelect {
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: promo entry requires %s, session is %s", ErrInvalidStep, StepSelect, orchestrator.state.step)
	}
	orchestrator.state.promoCode = normalized
	orchestrator.state.promoNotice = ""
	orchestrator.state.promoPending = normalized != ""
	credentialDropped := false
	if orchestrator.state.credential != nil && !orchestrator.state.credential.MatchesCode(normalized) {
		orchestrator.state.credential = nil
		orchestrator.state.quote = nil
		credentialDropped = true
	}
	lifetime := orchestrator.lifetime
	orchestrator.mutex.Unlock()

	orchestrator.debouncer.Enter(lifetime, orchestrator.session.Account(), normalized)
	if credentialDropped {
		orchestrator.triggerRecompute()
	}
	return nil
}

// applyPromoResult only lands while the session is still selecting; once a
// purchase is confirmed the credential is frozen.
func (orchestrator *Orchestrator) applyPromoResult(result PromoResult) {
	orchestrator.mutex.Lock()
	if orchestrator.state.step != StepSelect || normalizePromoCode(result.Code) != orchestrator.state.promoCode {
		orchestrator.mutex.Unlock()
		return
	}
	orchestrator.state.promoPending = false
	orchestrator.state.quote = nil
	switch {
	case result.Err != nil:
		orchestrator.state.credential = nil
		orchestrator.state.promoNotice = result.Err.Error()
	case result.Credential != nil:
		credential := *result.Credential
		orchestrator.state.credential = &credential
		orchestrator.state.promoNotice = ""
	default:
		orchestrator.state.credential = nil
		orchestrator.state.promoNotice = ""
	}
	var promoHash PromoHash
	if result.Credential != nil {
		promoHash = result.Credential.PromoHash
	}
	orchestrator.mutex.Unlock()

	if result.Code != "" {
		logOperation(orchestrator.lifetime, orchestrator.logger, OperationLog{
			Operation: OperationValidatePromo,
			Property:  orchestrator.propertyAddress,
			Wallet:    orchestrator.session.Account(),
			PromoHash: promoHash,
			Error:     result.Err,
		})
	}
	orchestrator.triggerRecompute()
}

// SwitchNetwork asks the session collaborator to move to the configured chain.
func (orchestrator *Orchestrator) SwitchNetwork(ctx context.Context) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	err := orchestrator.session.SwitchNetwork(ctx)
	logOperation(ctx, orchestrator.logger, OperationLog{
		Operation: OperationSwitchNetwork,
		Property:  orchestrator.propertyAddress,
		Wallet:    orchestrator.session.Account(),
		Error:     err,
	})
	if err != nil {
		return err
	}
	orchestrator.triggerRecompute()
	return nil
}

func (orchestrator *Orchestrator) requireLive() error {
	if orchestrator.lifetime.Err() != nil {
		return fmt.Errorf("%w: session unmounted", ErrInvalidStep)
	}
	return nil
}

// spawn is a no-op once Unmount has started waiting.
func (orchestrator *Orchestrator) spawn(task func()) {
	orchestrator.spawnMutex.Lock()
	defer orchestrator.spawnMutex.Unlock()
	if orchestrator.stopped {
		return
	}
	orchestrator.background.Add(1)
	go func() {
		defer orchestrator.background.Done()
		task()
	}()
}
