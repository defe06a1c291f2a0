package purchase

import (
	"context"
	"fmt"
)

// Purchase moves the session from Select to Confirm. It re-reads the balance
// and, with an active credential, the ledger quote before comparing them; any
// blocking condition is returned and the session stays in Select. A promo
// code still awaiting validation blocks the transition.
func (orchestrator *Orchestrator) Purchase(ctx context.Context) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	if err := orchestrator.requireWritable(); err != nil {
		return err
	}
	orchestrator.mutex.Lock()
	switch orchestrator.state.step {
	case StepSelect:
	case StepProcessing:
		orchestrator.mutex.Unlock()
		return ErrPurchaseInFlight
	default:
		step := orchestrator.state.step
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: purchase requires %s, session is %s", ErrInvalidStep, StepSelect, step)
	}
	if !orchestrator.propertyLoaded {
		orchestrator.mutex.Unlock()
		return ErrPropertyNotLoaded
	}
	if !orchestrator.property.IsActive() {
		orchestrator.mutex.Unlock()
		return ErrPropertyInactive
	}
	if orchestrator.state.selection.IsEmpty() {
		orchestrator.mutex.Unlock()
		return ErrEmptySelection
	}
	if orchestrator.state.promoPending {
		code := orchestrator.state.promoCode
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: code %q", ErrPromoPending, code)
	}
	orchestrator.mutex.Unlock()

	inputs := orchestrator.nextRecomputeInputs()
	views := orchestrator.computeViews(ctx, inputs)
	if views.balance == nil {
		return fmt.Errorf("%w: balance unavailable", ErrGatewayUnavailable)
	}
	cost, err := EffectiveCost(inputs.property, inputs.count, inputs.credential, views.quote)
	if err != nil {
		return err
	}

	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	key := quoteKeyFor(inputs.count, inputs.credential)
	if quoteKeyFor(orchestrator.state.selection.Len(), orchestrator.state.credential) != key {
		return fmt.Errorf("%w: selection changed during quote", ErrQuoteUnavailable)
	}
	if orchestrator.state.promoPending {
		return fmt.Errorf("%w: code %q", ErrPromoPending, orchestrator.state.promoCode)
	}
	orchestrator.state.quote = views.quote
	orchestrator.state.allowance = views.allowance
	orchestrator.state.balance = views.balance
	if *views.balance < cost {
		return fmt.Errorf("%w: balance %s, cost %s", ErrInsufficientBalance, FormatAmount(*views.balance), FormatAmount(cost))
	}
	if orchestrator.state.step != StepSelect {
		return fmt.Errorf("%w: session moved to %s", ErrInvalidStep, orchestrator.state.step)
	}
	orchestrator.state.step = StepConfirm
	orchestrator.state.confirmedKey = key
	orchestrator.state.confirmedCost = cost
	return nil
}

// Confirm moves the session from Confirm to Processing and starts the
// approve → buy sequence in the background. While Processing, further calls
// return ErrPurchaseInFlight without submitting anything. If the resolved
// intent or its cost no longer matches what Purchase checked against the
// balance, the session returns to Select and nothing is submitted.
func (orchestrator *Orchestrator) Confirm(ctx context.Context) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	orchestrator.mutex.Lock()
	switch orchestrator.state.step {
	case StepConfirm:
	case StepProcessing:
		orchestrator.mutex.Unlock()
		return ErrPurchaseInFlight
	default:
		step := orchestrator.state.step
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: confirm requires %s, session is %s", ErrInvalidStep, StepConfirm, step)
	}
	orchestrator.mutex.Unlock()
	if err := orchestrator.requireWritable(); err != nil {
		return err
	}

	orchestrator.mutex.Lock()
	if orchestrator.state.step != StepConfirm {
		step := orchestrator.state.step
		orchestrator.mutex.Unlock()
		if step == StepProcessing {
			return ErrPurchaseInFlight
		}
		return fmt.Errorf("%w: confirm requires %s, session is %s", ErrInvalidStep, StepConfirm, step)
	}
	intent := ResolveIntent(orchestrator.state.selection, orchestrator.state.credential, orchestrator.state.promoCode)
	count := len(intent.Slots())
	var required Amount
	var err error
	var key QuoteKey
	if promoted, ok := intent.(PromotedIntent); ok {
		key = quoteKeyFor(count, &promoted.Credential)
		required, err = DiscountedTotal(orchestrator.property, count, &promoted.Credential, orchestrator.state.quote)
	} else {
		key = quoteKeyFor(count, nil)
		required, err = TotalCost(orchestrator.property, count)
	}
	if err == nil && !orchestrator.property.IsActive() {
		err = ErrPropertyInactive
	}
	if err == nil && (key != orchestrator.state.confirmedKey || required != orchestrator.state.confirmedCost) {
		err = fmt.Errorf("%w: purchase changed since it was confirmed", ErrQuoteChanged)
	}
	if err != nil {
		orchestrator.state.step = StepSelect
		orchestrator.mutex.Unlock()
		orchestrator.triggerRecompute()
		return err
	}
	orchestrator.state.step = StepProcessing
	orchestrator.state.approvalTx = TxHash{}
	orchestrator.state.txRef = TxHash{}
	orchestrator.state.errorMessage = ""
	property := orchestrator.property
	lifetime := orchestrator.lifetime
	orchestrator.token++
	orchestrator.mutex.Unlock()

	account := orchestrator.session.Account()
	orchestrator.spawn(func() {
		orchestrator.runPurchase(lifetime, property, account, intent, required)
	})
	return nil
}

func (orchestrator *Orchestrator) runPurchase(ctx context.Context, property Property, account Address, intent PurchaseIntent, required Amount) {
	spender := orchestrator.gateway.Spender()
	needsApproval, err := orchestrator.approvals.NeedsApproval(ctx, account, spender, required)
	if err != nil {
		orchestrator.fail(err)
		return
	}
	if needsApproval {
		approvalHash, approveErr := orchestrator.approvals.Approve(ctx, spender, required)
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationApprove,
			Property:  property.Address,
			Wallet:    account,
			TxHash:    approvalHash,
			Amount:    required,
			Status:    statusForSubmission(approveErr),
			Error:     approveErr,
		})
		if approveErr != nil {
			orchestrator.fail(approveErr)
			return
		}
		orchestrator.mutex.Lock()
		orchestrator.state.approvalTx = approvalHash
		orchestrator.mutex.Unlock()
		awaitErr := orchestrator.gateway.AwaitTransaction(ctx, approvalHash)
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationApprove,
			Property:  property.Address,
			Wallet:    account,
			TxHash:    approvalHash,
			Amount:    required,
			Status:    statusForConfirmation(awaitErr),
			Error:     awaitErr,
		})
		if awaitErr != nil {
			orchestrator.fail(awaitErr)
			return
		}
		stillShort, checkErr := orchestrator.approvals.NeedsApproval(ctx, account, spender, required)
		if checkErr == nil && stillShort {
			checkErr = fmt.Errorf("%w: approved %s is not yet spendable", ErrInsufficientAllowance, FormatAmount(required))
		}
		if checkErr != nil {
			orchestrator.fail(checkErr)
			return
		}
	}

	operation := OperationBuy
	var promoHash PromoHash
	var hash TxHash
	switch typed := intent.(type) {
	case PromotedIntent:
		operation = OperationBuyWithPromo
		promoHash = typed.Credential.PromoHash
		hash, err = orchestrator.gateway.BuyWithPromo(ctx, property.Address, typed.Slots(), typed.Credential.PromoHash, typed.Credential.Signature)
	default:
		hash, err = orchestrator.gateway.Buy(ctx, property.Address, intent.Slots())
	}
	entry := OperationLog{
		Operation: operation,
		Property:  property.Address,
		Wallet:    account,
		TxHash:    hash,
		Amount:    required,
		Slots:     intent.Slots(),
		PromoHash: promoHash,
		Status:    statusForSubmission(err),
		Error:     err,
	}
	logOperation(ctx, orchestrator.logger, entry)
	if err != nil {
		orchestrator.fail(err)
		return
	}
	orchestrator.mutex.Lock()
	orchestrator.state.txRef = hash
	orchestrator.mutex.Unlock()

	err = orchestrator.gateway.AwaitTransaction(ctx, hash)
	entry.Status = statusForConfirmation(err)
	entry.Error = err
	logOperation(ctx, orchestrator.logger, entry)
	if err != nil {
		orchestrator.fail(err)
		return
	}
	orchestrator.succeed()
}

func (orchestrator *Orchestrator) succeed() {
	orchestrator.mutex.Lock()
	orchestrator.state.step = StepSuccess
	orchestrator.state.selection = NewSelection()
	orchestrator.state.promoCode = ""
	orchestrator.state.promoPending = false
	orchestrator.state.promoNotice = ""
	orchestrator.state.credential = nil
	orchestrator.state.quote = nil
	orchestrator.mutex.Unlock()
	orchestrator.debouncer.Stop()
	orchestrator.scheduleSettleRefresh()
	orchestrator.triggerRecompute()
}

// fail records the error text exactly as the ledger or wallet layer reported it.
func (orchestrator *Orchestrator) fail(err error) {
	orchestrator.mutex.Lock()
	orchestrator.state.step = StepError
	orchestrator.state.errorMessage = err.Error()
	orchestrator.mutex.Unlock()
	orchestrator.triggerRecompute()
}

// Retry returns an errored session to Select, clearing selection and promo state.
func (orchestrator *Orchestrator) Retry() error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	orchestrator.mutex.Lock()
	if orchestrator.state.step != StepError {
		step := orchestrator.state.step
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: retry requires %s, session is %s", ErrInvalidStep, StepError, step)
	}
	orchestrator.state = sessionState{
		step:      StepSelect,
		selection: NewSelection(),
		balance:   orchestrator.state.balance,
	}
	orchestrator.mutex.Unlock()
	orchestrator.debouncer.Stop()
	orchestrator.triggerRecompute()
	return nil
}

// Acknowledge returns a successful session to Select.
func (orchestrator *Orchestrator) Acknowledge() error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	orchestrator.mutex.Lock()
	if orchestrator.state.step != StepSuccess {
		step := orchestrator.state.step
		orchestrator.mutex.Unlock()
		return fmt.Errorf("%w: acknowledge requires %s, session is %s", ErrInvalidStep, StepSuccess, step)
	}
	orchestrator.state.step = StepSelect
	orchestrator.state.txRef = TxHash{}
	orchestrator.state.approvalTx = TxHash{}
	orchestrator.mutex.Unlock()
	return nil
}

func (orchestrator *Orchestrator) requireWritable() error {
	if !orchestrator.session.IsConnected() || orchestrator.session.Account().IsZero() {
		return ErrWalletNotConnected
	}
	if orchestrator.session.IsWrongNetwork() {
		return ErrWrongNetwork
	}
	return nil
}

func statusForSubmission(err error) string {
	if err != nil {
		return OperationStatusError
	}
	return OperationStatusSubmitted
}

func statusForConfirmation(err error) string {
	if err != nil {
		return OperationStatusError
	}
	return OperationStatusConfirmed
}
