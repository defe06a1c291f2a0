package purchase

import (
	"context"
	"fmt"
	"sync"
)

// SlotInventory keeps the sold/available view of one property's slots.
type SlotInventory struct {
	gateway LedgerGateway

	mutex    sync.RWMutex
	snapshot []SlotState
}

// NewSlotInventory wires an inventory over a gateway.
func NewSlotInventory(gateway LedgerGateway) (*SlotInventory, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidServiceConfig)
	}
	return &SlotInventory{gateway: gateway}, nil
}

// Refresh re-reads the available ids and replaces the snapshot wholesale.
// Inactive properties yield an empty snapshot and ErrPropertyInactive.
func (inventory *SlotInventory) Refresh(ctx context.Context, property Property) ([]SlotState, error) {
	if !property.IsActive() {
		inventory.replace(nil)
		return []SlotState{}, ErrPropertyInactive
	}
	available, err := inventory.gateway.GetAvailableSlots(ctx, property.Address)
	if err != nil {
		return []SlotState{}, err
	}
	states := MaterializeSlots(property.TotalSlots, available)
	inventory.replace(states)
	return copySlotStates(states), nil
}

// Current returns a copy of the last snapshot.
func (inventory *SlotInventory) Current() []SlotState {
	inventory.mutex.RLock()
	defer inventory.mutex.RUnlock()
	return copySlotStates(inventory.snapshot)
}

// IsSold reports whether id is sold in the last snapshot. Ids outside the
// snapshot count as sold so they can never be selected.
func (inventory *SlotInventory) IsSold(id SlotID) bool {
	inventory.mutex.RLock()
	defer inventory.mutex.RUnlock()
	index := int(id) - 1
	if index < 0 || index >= len(inventory.snapshot) {
		return true
	}
	return inventory.snapshot[index].Sold
}

// AvailableCount returns the number of unsold slots in the last snapshot.
func (inventory *SlotInventory) AvailableCount() int {
	inventory.mutex.RLock()
	defer inventory.mutex.RUnlock()
	count := 0
	for _, state := range inventory.snapshot {
		if !state.Sold {
			count++
		}
	}
	return count
}

func (inventory *SlotInventory) replace(states []SlotState) {
	inventory.mutex.Lock()
	inventory.snapshot = states
	inventory.mutex.Unlock()
}

// MaterializeSlots builds the full 1..totalSlots range, marking every id not
// present in available as sold.
func MaterializeSlots(totalSlots int, available []SlotID) []SlotState {
	if totalSlots <= 0 {
		return []SlotState{}
	}
	open := make(map[SlotID]struct{}, len(available))
	for _, id := range available {
		open[id] = struct{}{}
	}
	states := make([]SlotState, totalSlots)
	for index := range states {
		id := SlotID(index + 1)
		_, isOpen := open[id]
		states[index] = SlotState{ID: id, Sold: !isOpen}
	}
	return states
}

func copySlotStates(states []SlotState) []SlotState {
	copied := make([]SlotState, len(states))
	copy(copied, states)
	return copied
}
