package purchase

import "time"

const (
	OperationMount           = "mount"
	OperationLoadProperty    = "load_property"
	OperationLoadGallery     = "load_gallery"
	OperationRefreshSlots    = "refresh_slots"
	OperationValidatePromo   = "validate_promo"
	OperationQuote           = "quote"
	OperationCheckAllowance  = "check_allowance"
	OperationFetchBalance    = "fetch_balance"
	OperationApprove         = "approve"
	OperationBuy             = "buy"
	OperationBuyWithPromo    = "buy_with_promo"
	OperationWatchSupply     = "watch_supply"
	OperationSwitchNetwork   = "switch_network"
	OperationStatusOK        = "ok"
	OperationStatusError     = "error"
	OperationStatusSubmitted = "submitted"
	OperationStatusConfirmed = "confirmed"

	// AmountScale is the number of minor units per display unit (6 decimals).
	AmountScale    int64 = 1_000_000
	amountDecimals       = 6

	// DiscountScale is the fixed-point scale of on-chain promo percentages.
	DiscountScale int64 = 10_000

	addressHexLength = 40
	hashHexLength    = 64

	// DefaultPromoDebounce is the quiet period before a typed code is validated.
	DefaultPromoDebounce = 500 * time.Millisecond
	// DefaultSettleDelay is the wait after a confirmed purchase before inventory is re-read.
	DefaultSettleDelay = 2 * time.Second
	// DefaultBalancePollInterval paces the periodic balance and allowance refresh.
	DefaultBalancePollInterval = 15 * time.Second
	// DefaultSupplyPollInterval paces the total-supply watcher.
	DefaultSupplyPollInterval = 10 * time.Second
)
