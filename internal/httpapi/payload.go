package httpapi

import (
	"github.com/MarkoPoloResearchLab/slotmarket/internal/journal"
	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

type promoRequest struct {
	Code string `json:"code"`
}

type amountPayload struct {
	Minor   int64  `json:"minor"`
	Display string `json:"display"`
}

type propertyPayload struct {
	SlotContract string        `json:"slot_contract"`
	PricePerSlot amountPayload `json:"price_per_slot"`
	FeePerSlot   amountPayload `json:"fee_per_slot"`
	Status       string        `json:"status"`
	TotalSlots   int           `json:"total_slots"`
}

type slotPayload struct {
	ID       int  `json:"id"`
	Sold     bool `json:"sold"`
	Selected bool `json:"selected"`
}

type promoPayload struct {
	Code      string `json:"code"`
	Pending   bool   `json:"pending"`
	Notice    string `json:"notice,omitempty"`
	Valid     bool   `json:"valid"`
	Discount  string `json:"discount,omitempty"`
	PromoHash string `json:"promo_hash,omitempty"`
}

type costPayload struct {
	PerSlot    *amountPayload `json:"per_slot,omitempty"`
	Base       *amountPayload `json:"base,omitempty"`
	Discounted *amountPayload `json:"discounted,omitempty"`
}

type allowancePayload struct {
	Spender       string        `json:"spender"`
	Allowance     amountPayload `json:"allowance"`
	Required      amountPayload `json:"required"`
	NeedsApproval bool          `json:"needs_approval"`
}

type snapshotPayload struct {
	Property            string            `json:"property"`
	Step                string            `json:"step"`
	Connected           bool              `json:"connected"`
	WrongNetwork        bool              `json:"wrong_network"`
	Details             *propertyPayload  `json:"details,omitempty"`
	Images              []string          `json:"images"`
	Slots               []slotPayload     `json:"slots"`
	Selection           []int             `json:"selection"`
	Promo               promoPayload      `json:"promo"`
	Cost                costPayload       `json:"cost"`
	Balance             *amountPayload    `json:"balance,omitempty"`
	InsufficientBalance bool              `json:"insufficient_balance"`
	Allowance           *allowancePayload `json:"allowance,omitempty"`
	TxHash              string            `json:"tx_hash,omitempty"`
	ApprovalTxHash      string            `json:"approval_tx_hash,omitempty"`
	Error               string            `json:"error,omitempty"`
}

type submissionPayload struct {
	ID             string        `json:"id"`
	Property       string        `json:"property"`
	Kind           string        `json:"kind"`
	TxHash         string        `json:"tx_hash"`
	Amount         amountPayload `json:"amount"`
	Slots          []int         `json:"slots"`
	PromoHash      string        `json:"promo_hash,omitempty"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
	CreatedUnixUTC int64         `json:"created_unix_utc"`
}

func newAmountPayload(amount purchase.Amount) amountPayload {
	return amountPayload{Minor: amount.Int64(), Display: purchase.FormatAmount(amount)}
}

func optionalAmount(amount *purchase.Amount) *amountPayload {
	if amount == nil {
		return nil
	}
	payload := newAmountPayload(*amount)
	return &payload
}

func slotIDs(ids []purchase.SlotID) []int {
	values := make([]int, len(ids))
	for index, id := range ids {
		values[index] = id.Int()
	}
	return values
}

func newSnapshotPayload(snapshot purchase.Snapshot) snapshotPayload {
	payload := snapshotPayload{
		Property:            snapshot.PropertyAddress.String(),
		Step:                string(snapshot.Step),
		Connected:           snapshot.Connected,
		WrongNetwork:        snapshot.WrongNetwork,
		Images:              snapshot.Images,
		Slots:               make([]slotPayload, len(snapshot.Slots)),
		Selection:           slotIDs(snapshot.Selection),
		Balance:             optionalAmount(snapshot.Balance),
		InsufficientBalance: snapshot.InsufficientBalance(),
		Promo: promoPayload{
			Code:    snapshot.PromoCode,
			Pending: snapshot.PromoPending,
			Notice:  snapshot.PromoNotice,
		},
		Cost: costPayload{
			PerSlot:    optionalAmount(snapshot.PerSlotCost),
			Base:       optionalAmount(snapshot.BaseCost),
			Discounted: optionalAmount(snapshot.DiscountedCost),
		},
		Error: snapshot.ErrorMessage,
	}
	if payload.Images == nil {
		payload.Images = []string{}
	}
	for index, view := range snapshot.Slots {
		payload.Slots[index] = slotPayload{ID: view.ID.Int(), Sold: view.Sold, Selected: view.Selected}
	}
	if snapshot.Property != nil {
		payload.Details = &propertyPayload{
			SlotContract: snapshot.Property.SlotContract.String(),
			PricePerSlot: newAmountPayload(snapshot.Property.PricePerSlot),
			FeePerSlot:   newAmountPayload(snapshot.Property.FeePerSlot),
			Status:       string(snapshot.Property.Status),
			TotalSlots:   snapshot.Property.TotalSlots,
		}
	}
	if snapshot.Credential != nil {
		payload.Promo.Valid = true
		payload.Promo.Discount = snapshot.Credential.Discount.String()
		payload.Promo.PromoHash = snapshot.Credential.PromoHash.Hex()
	}
	if snapshot.Allowance != nil {
		payload.Allowance = &allowancePayload{
			Spender:       snapshot.Allowance.Spender.String(),
			Allowance:     newAmountPayload(snapshot.Allowance.Allowance),
			Required:      newAmountPayload(snapshot.Allowance.Required),
			NeedsApproval: snapshot.Allowance.NeedsApproval,
		}
	}
	if !snapshot.TxHash.IsZero() {
		payload.TxHash = snapshot.TxHash.String()
	}
	if !snapshot.ApprovalTxHash.IsZero() {
		payload.ApprovalTxHash = snapshot.ApprovalTxHash.String()
	}
	return payload
}

func newSubmissionPayload(submission journal.Submission) submissionPayload {
	payload := submissionPayload{
		ID:             submission.ID,
		Property:       submission.Property.String(),
		Kind:           string(submission.Kind),
		TxHash:         submission.TxHash.String(),
		Amount:         newAmountPayload(submission.Amount),
		Slots:          slotIDs(submission.Slots),
		Status:         string(submission.Status),
		Error:          submission.ErrorText,
		CreatedUnixUTC: submission.CreatedAt.Unix(),
	}
	if submission.PromoHash != nil {
		payload.PromoHash = submission.PromoHash.Hex()
	}
	return payload
}
