package purchase

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the purchase core.
var (
	ErrWalletNotConnected        = errors.New("wallet not connected")
	ErrWrongNetwork              = errors.New("wrong network")
	ErrGatewayUnavailable        = errors.New("gateway unavailable")
	ErrInvalidAddress            = errors.New("invalid address")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientAllowance     = errors.New("insufficient allowance")
	ErrPromoInvalid              = errors.New("promo invalid")
	ErrMissingSignatureData      = errors.New("missing signature data")
	ErrInvalidDiscountRange      = errors.New("invalid discount range")
	ErrPromoExpired              = errors.New("promo expired")
	ErrTransactionReverted       = errors.New("transaction reverted")
	ErrTransactionRejectedByUser = errors.New("transaction rejected by user")
	ErrPropertyInactive          = errors.New("property inactive")
	ErrPropertyNotLoaded         = errors.New("property not loaded")
	ErrInvalidSlotID             = errors.New("invalid slot id")
	ErrSlotSold                  = errors.New("slot sold")
	ErrEmptySelection            = errors.New("empty selection")
	ErrInvalidStep               = errors.New("invalid step")
	ErrPurchaseInFlight          = errors.New("purchase in flight")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidTxHash             = errors.New("invalid transaction hash")
	ErrInvalidPromoHash          = errors.New("invalid promo hash")
	ErrQuoteUnavailable          = errors.New("quote unavailable")
	ErrQuoteChanged              = errors.New("quote changed")
	ErrPromoPending              = errors.New("promo validation pending")
	ErrInvalidServiceConfig      = errors.New("invalid service config")
)

// TransactionRevertedError carries the revert reason reported by the ledger.
type TransactionRevertedError struct {
	Reason string
}

// Error returns the revert reason as reported, prefixed by the sentinel text.
func (revertedError TransactionRevertedError) Error() string {
	if revertedError.Reason == "" {
		return ErrTransactionReverted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTransactionReverted.Error(), revertedError.Reason)
}

// Unwrap exposes ErrTransactionReverted for errors.Is.
func (revertedError TransactionRevertedError) Unwrap() error {
	return ErrTransactionReverted
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
