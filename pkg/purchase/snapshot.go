package purchase

// Snapshot is a read-only copy of a session's observable state.
type Snapshot struct {
	PropertyAddress Address
	Property        *Property
	Images          []string
	Step            Step
	Slots           []SlotView
	Selection       []SlotID
	PromoCode       string
	PromoPending    bool
	PromoNotice     string
	Credential      *PromoCredential
	PerSlotCost     *Amount
	BaseCost        *Amount
	DiscountedCost  *Amount
	Balance         *Amount
	Allowance       *AllowanceState
	TxHash          TxHash
	ApprovalTxHash  TxHash
	ErrorMessage    string
	Connected       bool
	WrongNetwork    bool
}

// InsufficientBalance reports whether the known balance is below the cost the
// current selection would spend.
func (snapshot Snapshot) InsufficientBalance() bool {
	if snapshot.Balance == nil {
		return false
	}
	cost := snapshot.BaseCost
	if snapshot.DiscountedCost != nil {
		cost = snapshot.DiscountedCost
	}
	if cost == nil {
		return false
	}
	return *snapshot.Balance < *cost
}

// Snapshot returns the current session view. Cost fields are nil until the
// property is loaded; DiscountedCost is set only for a credential whose
// ledger quote matches the current selection.
func (orchestrator *Orchestrator) Snapshot() Snapshot {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()

	snapshot := Snapshot{
		PropertyAddress: orchestrator.propertyAddress,
		Images:          append([]string(nil), orchestrator.images...),
		Step:            orchestrator.state.step,
		Slots:           ViewSlots(orchestrator.inventory.Current(), orchestrator.state.selection),
		Selection:       orchestrator.state.selection.Sorted(),
		PromoCode:       orchestrator.state.promoCode,
		PromoPending:    orchestrator.state.promoPending,
		PromoNotice:     orchestrator.state.promoNotice,
		TxHash:          orchestrator.state.txRef,
		ApprovalTxHash:  orchestrator.state.approvalTx,
		ErrorMessage:    orchestrator.state.errorMessage,
		Connected:       orchestrator.session.IsConnected(),
		WrongNetwork:    orchestrator.session.IsWrongNetwork(),
	}
	if orchestrator.state.credential != nil {
		credential := *orchestrator.state.credential
		snapshot.Credential = &credential
	}
	if orchestrator.state.balance != nil {
		balance := *orchestrator.state.balance
		snapshot.Balance = &balance
	}
	if orchestrator.state.allowance != nil {
		allowance := *orchestrator.state.allowance
		snapshot.Allowance = &allowance
	}
	if !orchestrator.propertyLoaded {
		return snapshot
	}
	property := orchestrator.property
	snapshot.Property = &property
	count := orchestrator.state.selection.Len()
	if perSlot, err := PerSlotCost(property); err == nil {
		snapshot.PerSlotCost = &perSlot
	}
	if base, err := TotalCost(property, count); err == nil {
		snapshot.BaseCost = &base
	}
	quote := orchestrator.state.quote
	credential := orchestrator.state.credential
	if credential != nil && quote != nil && quote.Discounted != nil && quote.Key == quoteKeyFor(count, credential) {
		if discounted, err := DiscountedTotal(property, count, credential, quote); err == nil {
			snapshot.DiscountedCost = &discounted
		}
	}
	return snapshot
}
