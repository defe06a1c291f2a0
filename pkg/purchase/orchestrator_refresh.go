package purchase

import (
	"context"
	"errors"
)

type recomputeInputs struct {
	token      uint64
	property   Property
	loaded     bool
	count      int
	credential *PromoCredential
	account    Address
	connected  bool
}

type recomputeResult struct {
	quote     *CostQuote
	allowance *AllowanceState
	balance   *Amount
}

// triggerRecompute starts a background refresh of cost, allowance, and balance
// for the current (selection, credential). Only the newest request may apply.
func (orchestrator *Orchestrator) triggerRecompute() {
	inputs := orchestrator.nextRecomputeInputs()
	ctx := orchestrator.lifetime
	orchestrator.spawn(func() {
		result := orchestrator.computeViews(ctx, inputs)
		orchestrator.applyRecompute(inputs.token, result)
	})
}

func (orchestrator *Orchestrator) nextRecomputeInputs() recomputeInputs {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.token++
	inputs := recomputeInputs{
		token:     orchestrator.token,
		property:  orchestrator.property,
		loaded:    orchestrator.propertyLoaded,
		count:     orchestrator.state.selection.Len(),
		account:   orchestrator.session.Account(),
		connected: orchestrator.session.IsConnected(),
	}
	if orchestrator.state.credential != nil {
		credential := *orchestrator.state.credential
		inputs.credential = &credential
	}
	return inputs
}

func (orchestrator *Orchestrator) computeViews(ctx context.Context, inputs recomputeInputs) recomputeResult {
	result := recomputeResult{}
	if !inputs.loaded {
		return result
	}
	base, err := TotalCost(inputs.property, inputs.count)
	if err != nil {
		return result
	}
	quote := &CostQuote{Key: quoteKeyFor(inputs.count, inputs.credential), Base: base}
	if inputs.credential != nil && inputs.count > 0 {
		discounted, quoteErr := orchestrator.gateway.GetCostWithPromo(ctx, inputs.property.Address, inputs.count, inputs.credential.PromoHash)
		if quoteErr != nil {
			logOperation(ctx, orchestrator.logger, OperationLog{
				Operation: OperationQuote,
				Property:  inputs.property.Address,
				Wallet:    inputs.account,
				PromoHash: inputs.credential.PromoHash,
				Error:     quoteErr,
			})
		} else {
			quote.Discounted = &discounted
		}
	}
	result.quote = quote
	if !inputs.connected || inputs.account.IsZero() {
		return result
	}
	required, err := EffectiveCost(inputs.property, inputs.count, inputs.credential, quote)
	if err != nil {
		return result
	}
	balance, balanceErr := orchestrator.gateway.GetBalance(ctx, inputs.account)
	if balanceErr != nil {
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationFetchBalance,
			Property:  inputs.property.Address,
			Wallet:    inputs.account,
			Error:     balanceErr,
		})
	} else {
		result.balance = &balance
	}
	allowance, allowanceErr := orchestrator.approvals.Check(ctx, inputs.account, orchestrator.gateway.Spender(), required)
	if allowanceErr != nil {
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationCheckAllowance,
			Property:  inputs.property.Address,
			Wallet:    inputs.account,
			Amount:    required,
			Error:     allowanceErr,
		})
	} else {
		result.allowance = &allowance
	}
	return result
}

func (orchestrator *Orchestrator) applyRecompute(token uint64, result recomputeResult) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if token != orchestrator.token {
		return
	}
	orchestrator.state.quote = result.quote
	orchestrator.state.allowance = result.allowance
	if result.balance != nil {
		orchestrator.state.balance = result.balance
	}
}

// RefreshInventory re-reads the property terms and slot availability. Slots
// that became sold leave the selection; a property that went inactive clears
// it and reports ErrPropertyInactive.
func (orchestrator *Orchestrator) RefreshInventory(ctx context.Context) error {
	if err := orchestrator.requireLive(); err != nil {
		return err
	}
	property, changed, err := orchestrator.loadProperty(ctx)
	if err != nil {
		return err
	}
	_, err = orchestrator.inventory.Refresh(ctx, property)
	logOperation(ctx, orchestrator.logger, OperationLog{
		Operation: OperationRefreshSlots,
		Property:  property.Address,
		Error:     err,
	})
	if err != nil && !errors.Is(err, ErrPropertyInactive) {
		return err
	}

	orchestrator.mutex.Lock()
	pruned := false
	if orchestrator.state.step == StepSelect {
		filtered := orchestrator.state.selection.Without(orchestrator.inventory.IsSold)
		pruned = filtered.Len() != orchestrator.state.selection.Len()
		orchestrator.state.selection = filtered
	}
	orchestrator.mutex.Unlock()
	if pruned || changed {
		orchestrator.triggerRecompute()
	}
	return err
}

// loadProperty reads the property terms on every call and the gallery once per
// session. It reports whether the terms differ from the previous read. A failed
// read keeps the last known terms.
func (orchestrator *Orchestrator) loadProperty(ctx context.Context) (Property, bool, error) {
	property, err := orchestrator.gateway.GetProperty(ctx, orchestrator.propertyAddress)
	logOperation(ctx, orchestrator.logger, OperationLog{
		Operation: OperationLoadProperty,
		Property:  orchestrator.propertyAddress,
		Error:     err,
	})
	if err != nil {
		return Property{}, false, err
	}

	orchestrator.mutex.Lock()
	needsGallery := orchestrator.gallery != nil && !orchestrator.galleryLoaded
	orchestrator.mutex.Unlock()
	var images []string
	if needsGallery {
		images = orchestrator.gallery.Images(ctx, property.SlotContract)
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationLoadGallery,
			Property:  orchestrator.propertyAddress,
		})
	}

	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	changed := !orchestrator.propertyLoaded || orchestrator.property != property
	orchestrator.property = property
	orchestrator.propertyLoaded = true
	if needsGallery && !orchestrator.galleryLoaded {
		orchestrator.images = images
		orchestrator.galleryLoaded = true
	}
	return property, changed, nil
}

func (orchestrator *Orchestrator) startWatchers() {
	watchers := []CancelFunc{}
	if orchestrator.supplyPollInterval > 0 {
		watchers = append(watchers, orchestrator.scheduler.Every(orchestrator.supplyPollInterval, func() {
			orchestrator.spawn(func() { orchestrator.checkSupply(orchestrator.lifetime) })
		}))
	}
	if orchestrator.balancePollInterval > 0 {
		watchers = append(watchers, orchestrator.scheduler.Every(orchestrator.balancePollInterval, orchestrator.triggerRecompute))
	}
	orchestrator.mutex.Lock()
	orchestrator.watchers = append(orchestrator.watchers, watchers...)
	orchestrator.mutex.Unlock()
}

// checkSupply refreshes the inventory when the slot contract's total supply moves.
func (orchestrator *Orchestrator) checkSupply(ctx context.Context) {
	orchestrator.mutex.Lock()
	loaded := orchestrator.propertyLoaded
	slotContract := orchestrator.property.SlotContract
	orchestrator.mutex.Unlock()
	if !loaded {
		if err := orchestrator.RefreshInventory(ctx); err != nil {
			return
		}
		orchestrator.mutex.Lock()
		slotContract = orchestrator.property.SlotContract
		orchestrator.mutex.Unlock()
	}

	supply, err := orchestrator.gateway.GetTotalSupply(ctx, slotContract)
	if err != nil {
		logOperation(ctx, orchestrator.logger, OperationLog{
			Operation: OperationWatchSupply,
			Property:  orchestrator.propertyAddress,
			Error:     err,
		})
		return
	}
	orchestrator.mutex.Lock()
	changed := orchestrator.supplyKnown && supply != orchestrator.lastSupply
	orchestrator.lastSupply = supply
	orchestrator.supplyKnown = true
	orchestrator.mutex.Unlock()
	if changed {
		_ = orchestrator.RefreshInventory(ctx)
	}
}

// scheduleSettleRefresh re-reads the inventory after the settle delay.
func (orchestrator *Orchestrator) scheduleSettleRefresh() {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if orchestrator.settleCancel != nil {
		orchestrator.settleCancel()
	}
	ctx := orchestrator.lifetime
	orchestrator.settleCancel = orchestrator.scheduler.AfterFunc(orchestrator.settleDelay, func() {
		orchestrator.spawn(func() { _ = orchestrator.RefreshInventory(ctx) })
	})
}
