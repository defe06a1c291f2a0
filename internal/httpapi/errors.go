package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/gin-gonic/gin"
)

const (
	errorUnauthorized        = "unauthorized"
	errorInvalidPayload      = "invalid_payload"
	errorInvalidAddress      = "invalid_address"
	errorInvalidSlotID       = "invalid_slot_id"
	errorInvalidLimit        = "invalid_limit"
	errorSessionNotFound     = "session_not_found"
	errorWalletNotConnected  = "wallet_not_connected"
	errorWrongNetwork        = "wrong_network"
	errorInsufficientBalance = "insufficient_balance"
	errorPropertyInactive    = "property_inactive"
	errorPropertyNotLoaded   = "property_not_loaded"
	errorSlotSold            = "slot_sold"
	errorEmptySelection      = "empty_selection"
	errorInvalidStep         = "invalid_step"
	errorPurchaseInFlight    = "purchase_in_flight"
	errorQuoteUnavailable    = "quote_unavailable"
	errorQuoteChanged        = "quote_changed"
	errorPromoPending        = "promo_pending"
	errorAllowanceShort      = "insufficient_allowance"
	errorGatewayUnavailable  = "gateway_unavailable"
	errorRejectedByUser      = "transaction_rejected"
	errorTransactionReverted = "transaction_reverted"
	errorInternal            = "internal_error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{target: ErrSessionNotFound, status: http.StatusNotFound, code: errorSessionNotFound},
	{target: purchase.ErrInvalidAddress, status: http.StatusBadRequest, code: errorInvalidAddress},
	{target: purchase.ErrInvalidSlotID, status: http.StatusBadRequest, code: errorInvalidSlotID},
	{target: purchase.ErrWalletNotConnected, status: http.StatusConflict, code: errorWalletNotConnected},
	{target: purchase.ErrWrongNetwork, status: http.StatusConflict, code: errorWrongNetwork},
	{target: purchase.ErrInsufficientBalance, status: http.StatusConflict, code: errorInsufficientBalance},
	{target: purchase.ErrPropertyInactive, status: http.StatusConflict, code: errorPropertyInactive},
	{target: purchase.ErrPropertyNotLoaded, status: http.StatusConflict, code: errorPropertyNotLoaded},
	{target: purchase.ErrSlotSold, status: http.StatusConflict, code: errorSlotSold},
	{target: purchase.ErrEmptySelection, status: http.StatusConflict, code: errorEmptySelection},
	{target: purchase.ErrPurchaseInFlight, status: http.StatusConflict, code: errorPurchaseInFlight},
	{target: purchase.ErrInvalidStep, status: http.StatusConflict, code: errorInvalidStep},
	{target: purchase.ErrQuoteChanged, status: http.StatusConflict, code: errorQuoteChanged},
	{target: purchase.ErrPromoPending, status: http.StatusConflict, code: errorPromoPending},
	{target: purchase.ErrInsufficientAllowance, status: http.StatusConflict, code: errorAllowanceShort},
	{target: purchase.ErrQuoteUnavailable, status: http.StatusServiceUnavailable, code: errorQuoteUnavailable},
	{target: purchase.ErrTransactionRejectedByUser, status: http.StatusConflict, code: errorRejectedByUser},
	{target: purchase.ErrTransactionReverted, status: http.StatusBadGateway, code: errorTransactionReverted},
	{target: purchase.ErrGatewayUnavailable, status: http.StatusBadGateway, code: errorGatewayUnavailable},
}

// mapError converts a domain error into an HTTP status and stable code.
func mapError(source error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(source, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, errorInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
