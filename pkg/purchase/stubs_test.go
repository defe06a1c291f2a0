package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const (
	propertyAddressValue = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	slotContractValue    = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	spenderAddressValue  = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
	walletAddressValue   = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
	promoHashValue       = "0x1111111111111111111111111111111111111111111111111111111111111111"
	signatureValue       = "0xabcdef"
	promoCodeValue       = "SAVE10"
	errorMismatchMessage = "expected %v, got %v"
)

var errGatewayFailure = errors.New("gateway failure")

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) byOperation(operation string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	matched := []OperationLog{}
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matched = append(matched, entry)
		}
	}
	return matched
}

type stubGateway struct {
	mutex sync.Mutex

	property       Property
	propertyErr    error
	propertyCalls  int
	available      []SlotID
	availableErr   error
	availableCalls int
	supply         int64
	terms          PromoTerms
	termsErr       error
	discounted     Amount
	quoteErr       error
	quoteCalls     int
	allowance      Amount
	balance        Amount
	balanceErr     error
	approveErr     error
	buyErr         error
	revertApproval bool
	revertBuy      string
	staleAllowance bool
	buyGate        chan struct{}
	balanceGate    chan struct{}
	balanceEntered chan struct{}

	sequence       int
	approvalHashes map[TxHash]Amount
	approvals      []Amount
	buys           [][]SlotID
	promoBuys      []PromoHash
}

func newStubGateway(test *testing.T) *stubGateway {
	test.Helper()
	return &stubGateway{
		property: Property{
			Address:      mustAddress(test, propertyAddressValue),
			SlotContract: mustAddress(test, slotContractValue),
			PricePerSlot: 1_000_000,
			FeePerSlot:   0,
			Status:       PropertyStatusActive,
			TotalSlots:   10,
		},
		available:      []SlotID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		terms:          PromoTerms{Percent: 1_000},
		discounted:     1_800_000,
		balance:        100 * Amount(AmountScale),
		approvalHashes: map[TxHash]Amount{},
	}
}

func (gateway *stubGateway) GetProperty(_ context.Context, property Address) (Property, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.propertyCalls++
	if gateway.propertyErr != nil {
		return Property{}, gateway.propertyErr
	}
	if property != gateway.property.Address {
		return Property{}, fmt.Errorf("%w: unknown property", ErrInvalidAddress)
	}
	return gateway.property, nil
}

func (gateway *stubGateway) GetAvailableSlots(context.Context, Address) ([]SlotID, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.availableCalls++
	if gateway.availableErr != nil {
		return nil, gateway.availableErr
	}
	return append([]SlotID(nil), gateway.available...), nil
}

func (gateway *stubGateway) GetTotalSupply(context.Context, Address) (int64, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return gateway.supply, nil
}

func (gateway *stubGateway) GetPromoCodeTerms(context.Context, PromoHash) (PromoTerms, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return gateway.terms, gateway.termsErr
}

func (gateway *stubGateway) GetCost(_ context.Context, _ Address, slotCount int) (Amount, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return TotalCost(gateway.property, slotCount)
}

func (gateway *stubGateway) GetCostWithPromo(context.Context, Address, int, PromoHash) (Amount, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.quoteCalls++
	if gateway.quoteErr != nil {
		return 0, gateway.quoteErr
	}
	return gateway.discounted, nil
}

func (gateway *stubGateway) GetAllowance(context.Context, Address, Address) (Amount, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return gateway.allowance, nil
}

// GetBalance reads the balance before blocking on a one-shot balanceGate, so
// a gated call returns the value current when it started.
func (gateway *stubGateway) GetBalance(ctx context.Context, _ Address) (Amount, error) {
	gateway.mutex.Lock()
	balance, err := gateway.balance, gateway.balanceErr
	gate, entered := gateway.balanceGate, gateway.balanceEntered
	gateway.balanceGate, gateway.balanceEntered = nil, nil
	gateway.mutex.Unlock()
	if gate != nil {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (gateway *stubGateway) Spender() Address {
	return MustAddress(spenderAddressValue)
}

func (gateway *stubGateway) Approve(_ context.Context, _ Address, amount Amount) (TxHash, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.approveErr != nil {
		return TxHash{}, gateway.approveErr
	}
	hash := gateway.nextHashLocked()
	gateway.approvals = append(gateway.approvals, amount)
	gateway.approvalHashes[hash] = amount
	return hash, nil
}

func (gateway *stubGateway) Buy(ctx context.Context, _ Address, slots []SlotID) (TxHash, error) {
	if err := gateway.waitBuyGate(ctx); err != nil {
		return TxHash{}, err
	}
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.buyErr != nil {
		return TxHash{}, gateway.buyErr
	}
	gateway.buys = append(gateway.buys, append([]SlotID(nil), slots...))
	return gateway.nextHashLocked(), nil
}

func (gateway *stubGateway) BuyWithPromo(ctx context.Context, _ Address, slots []SlotID, promoHash PromoHash, _ Signature) (TxHash, error) {
	if err := gateway.waitBuyGate(ctx); err != nil {
		return TxHash{}, err
	}
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.buyErr != nil {
		return TxHash{}, gateway.buyErr
	}
	gateway.buys = append(gateway.buys, append([]SlotID(nil), slots...))
	gateway.promoBuys = append(gateway.promoBuys, promoHash)
	return gateway.nextHashLocked(), nil
}

func (gateway *stubGateway) AwaitTransaction(_ context.Context, hash TxHash) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if amount, isApproval := gateway.approvalHashes[hash]; isApproval {
		if gateway.revertApproval {
			return TransactionRevertedError{Reason: "approve failed"}
		}
		if !gateway.staleAllowance {
			gateway.allowance = amount
		}
		return nil
	}
	if gateway.revertBuy != "" {
		return TransactionRevertedError{Reason: gateway.revertBuy}
	}
	return nil
}

func (gateway *stubGateway) waitBuyGate(ctx context.Context) error {
	gateway.mutex.Lock()
	gate := gateway.buyGate
	gateway.mutex.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (gateway *stubGateway) nextHashLocked() TxHash {
	gateway.sequence++
	return TxHash{value: fmt.Sprintf("0x%064x", gateway.sequence)}
}

func (gateway *stubGateway) set(update func(gateway *stubGateway)) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	update(gateway)
}

func (gateway *stubGateway) recordedBuys() [][]SlotID {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([][]SlotID(nil), gateway.buys...)
}

func (gateway *stubGateway) recordedApprovals() []Amount {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([]Amount(nil), gateway.approvals...)
}

type stubSigner struct {
	mutex    sync.Mutex
	response SignedPromo
	err      error
	gate     chan struct{}
	codes    []string
}

func newStubSigner() *stubSigner {
	return &stubSigner{response: SignedPromo{Signature: signatureValue, PromoHash: promoHashValue}}
}

func (signer *stubSigner) Sign(ctx context.Context, _ Address, code string) (SignedPromo, error) {
	signer.mutex.Lock()
	signer.codes = append(signer.codes, code)
	gate := signer.gate
	response := signer.response
	err := signer.err
	signer.mutex.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return SignedPromo{}, ctx.Err()
		}
	}
	return response, err
}

func (signer *stubSigner) requestedCodes() []string {
	signer.mutex.Lock()
	defer signer.mutex.Unlock()
	return append([]string(nil), signer.codes...)
}

type stubSession struct {
	mutex        sync.Mutex
	connected    bool
	wrongNetwork bool
	account      Address
	switchErr    error
	switchCalls  int
}

func newStubSession(test *testing.T) *stubSession {
	test.Helper()
	return &stubSession{connected: true, account: mustAddress(test, walletAddressValue)}
}

func (session *stubSession) IsConnected() bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.connected
}

func (session *stubSession) IsWrongNetwork() bool {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.wrongNetwork
}

func (session *stubSession) ChainID() uint64 {
	return 8453
}

func (session *stubSession) Account() Address {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if !session.connected {
		return Address{}
	}
	return session.account
}

func (session *stubSession) SwitchNetwork(context.Context) error {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.switchCalls++
	if session.switchErr != nil {
		return session.switchErr
	}
	session.wrongNetwork = false
	return nil
}

type stubGallery struct {
	images []string
}

func (gallery stubGallery) Images(context.Context, Address) []string {
	return append([]string(nil), gallery.images...)
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	gateway      *stubGateway
	session      *stubSession
	signer       *stubSigner
	scheduler    *ManualScheduler
	logger       *recorderLogger
}

func newOrchestratorFixture(test *testing.T, options ...Option) orchestratorFixture {
	test.Helper()
	fixture := orchestratorFixture{
		gateway:   newStubGateway(test),
		session:   newStubSession(test),
		signer:    newStubSigner(),
		scheduler: NewManualScheduler(time.Unix(1_700_000_000, 0).UTC()),
		logger:    &recorderLogger{},
	}
	base := []Option{
		WithScheduler(fixture.scheduler),
		WithOperationLogger(fixture.logger),
		WithClock(func() int64 { return 1_700_000_000 }),
		WithBalancePollInterval(0),
		WithSupplyPollInterval(0),
	}
	orchestrator, err := NewOrchestrator(mustAddress(test, propertyAddressValue), fixture.gateway, fixture.session, fixture.signer, append(base, options...)...)
	if err != nil {
		test.Fatalf("orchestrator init failed: %v", err)
	}
	fixture.orchestrator = orchestrator
	test.Cleanup(orchestrator.Unmount)
	return fixture
}

func (fixture orchestratorFixture) mount(test *testing.T) {
	test.Helper()
	if err := fixture.orchestrator.Mount(context.Background()); err != nil {
		test.Fatalf("mount failed: %v", err)
	}
	fixture.orchestrator.Wait()
}

func (fixture orchestratorFixture) toggle(test *testing.T, ids ...SlotID) {
	test.Helper()
	for _, id := range ids {
		if err := fixture.orchestrator.ToggleSlot(id); err != nil {
			test.Fatalf("toggle %d failed: %v", id, err)
		}
	}
	fixture.orchestrator.Wait()
}

func (fixture orchestratorFixture) enterPromo(test *testing.T, code string) {
	test.Helper()
	if err := fixture.orchestrator.SetPromoCode(code); err != nil {
		test.Fatalf("set promo failed: %v", err)
	}
	fixture.scheduler.Advance(DefaultPromoDebounce)
	fixture.orchestrator.Wait()
}

func waitFor(test *testing.T, description string, condition func() bool) {
	test.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			test.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustAddress(test *testing.T, raw string) Address {
	test.Helper()
	address, err := NewAddress(raw)
	if err != nil {
		test.Fatalf("address %q: %v", raw, err)
	}
	return address
}

func mustPromoHash(test *testing.T, raw string) PromoHash {
	test.Helper()
	hash, err := NewPromoHash(raw)
	if err != nil {
		test.Fatalf("promo hash %q: %v", raw, err)
	}
	return hash
}

func mustParseAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}
