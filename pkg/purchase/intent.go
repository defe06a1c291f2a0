package purchase

// PurchaseIntent is resolved once when a purchase is confirmed: either a plain
// purchase or one carrying a promo credential.
type PurchaseIntent interface {
	Slots() []SlotID
	isPurchaseIntent()
}

// PlainIntent buys slots at the undiscounted price.
type PlainIntent struct {
	slots []SlotID
}

// Slots returns the ids to buy.
func (intent PlainIntent) Slots() []SlotID {
	return append([]SlotID(nil), intent.slots...)
}

func (PlainIntent) isPurchaseIntent() {}

// PromotedIntent buys slots with a promo credential attached.
type PromotedIntent struct {
	slots      []SlotID
	Credential PromoCredential
}

// Slots returns the ids to buy.
func (intent PromotedIntent) Slots() []SlotID {
	return append([]SlotID(nil), intent.slots...)
}

func (PromotedIntent) isPurchaseIntent() {}

// ResolveIntent picks the promoted variant only when a credential exists and
// was derived from the code currently entered.
func ResolveIntent(selection Selection, credential *PromoCredential, enteredCode string) PurchaseIntent {
	slots := selection.Sorted()
	if credential != nil && credential.MatchesCode(enteredCode) {
		return PromotedIntent{slots: slots, Credential: *credential}
	}
	return PlainIntent{slots: slots}
}
