package purchase

import "sort"

// Selection is a set of slot ids chosen for purchase.
type Selection struct {
	ids map[SlotID]struct{}
}

// NewSelection builds a selection from ids, dropping duplicates.
func NewSelection(ids ...SlotID) Selection {
	selection := Selection{ids: make(map[SlotID]struct{}, len(ids))}
	for _, id := range ids {
		selection.ids[id] = struct{}{}
	}
	return selection
}

// Contains reports membership.
func (selection Selection) Contains(id SlotID) bool {
	_, ok := selection.ids[id]
	return ok
}

// Len returns the number of selected slots.
func (selection Selection) Len() int {
	return len(selection.ids)
}

// IsEmpty reports whether nothing is selected.
func (selection Selection) IsEmpty() bool {
	return len(selection.ids) == 0
}

// Sorted returns the ids in ascending order.
func (selection Selection) Sorted() []SlotID {
	sorted := make([]SlotID, 0, len(selection.ids))
	for id := range selection.ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(left, right int) bool { return sorted[left] < sorted[right] })
	return sorted
}

// Toggle returns a copy with id's membership flipped.
func (selection Selection) Toggle(id SlotID) Selection {
	toggled := selection.clone()
	if _, ok := toggled.ids[id]; ok {
		delete(toggled.ids, id)
	} else {
		toggled.ids[id] = struct{}{}
	}
	return toggled
}

// Without returns a copy with every sold id removed.
func (selection Selection) Without(isSold func(SlotID) bool) Selection {
	filtered := NewSelection()
	for id := range selection.ids {
		if !isSold(id) {
			filtered.ids[id] = struct{}{}
		}
	}
	return filtered
}

func (selection Selection) clone() Selection {
	copied := Selection{ids: make(map[SlotID]struct{}, len(selection.ids)+1)}
	for id := range selection.ids {
		copied.ids[id] = struct{}{}
	}
	return copied
}

// SlotView is one inventory entry decorated with selection state. Selected is
// derived from the selection on every read, never stored.
type SlotView struct {
	ID       SlotID
	Sold     bool
	Selected bool
}

// ViewSlots joins an inventory snapshot with a selection.
func ViewSlots(states []SlotState, selection Selection) []SlotView {
	views := make([]SlotView, len(states))
	for index, state := range states {
		views[index] = SlotView{ID: state.ID, Sold: state.Sold, Selected: selection.Contains(state.ID)}
	}
	return views
}
