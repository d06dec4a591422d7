package model

import "errors"

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ErrorKind classifies a DomainError. Handlers map each kind to one HTTP status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindUnprocessable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindUnprocessable:
		return "unprocessable_entity"
	default:
		return "internal"
	}
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidQuantity      = "INVALID_QUANTITY"
	ErrCodeUnauthorised         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeOrderNotFound        = "ORDER_NOT_FOUND"
	ErrCodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	ErrCodeDeliveryNotFound     = "DELIVERY_NOT_FOUND"
	ErrCodeCartLineNotFound     = "CART_LINE_NOT_FOUND"
	ErrCodeComboNotFound        = "COMBO_NOT_FOUND"
	ErrCodeInsufficientStock    = "INSUFFICIENT_STOCK"
	ErrCodeInsufficientCart     = "INSUFFICIENT_CART_QUANTITY"
	ErrCodeOrderNotCancelable   = "ORDER_NOT_CANCELABLE"
	ErrCodeOrderTerminal        = "ORDER_TERMINAL"
	ErrCodeInvalidStatus        = "INVALID_STATUS"
	ErrCodeCarrierRejected      = "CARRIER_REJECTED"
	ErrCodeCarrierFailure       = "CARRIER_FAILURE"
	ErrCodeVoucherInvalid       = "VOUCHER_INVALID"
	ErrCodeVoucherNotFound      = "VOUCHER_NOT_FOUND"
	ErrCodeDuplicateRequest     = "DUPLICATE_REQUEST"
	ErrCodeStatusUpdateConflict = "STATUS_UPDATE_FAILED"
)

// Domain errors for business logic
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

func NotFound(code, message string) *DomainError {
	return NewDomainError(KindNotFound, code, message)
}

func Forbidden(code, message string) *DomainError {
	return NewDomainError(KindForbidden, code, message)
}

func Unprocessable(code, message string) *DomainError {
	return NewDomainError(KindUnprocessable, code, message)
}

func Internal(code, message string) *DomainError {
	return NewDomainError(KindInternal, code, message)
}

// Wrap returns a DomainError that keeps cause reachable through errors.As/Is.
func Wrap(kind ErrorKind, code, message string, cause error) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, Err: cause}
}

// KindOf reports the kind of the first DomainError in err's chain.
// Errors that carry no DomainError are internal.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Common domain errors
var (
	ErrInvalidQuantity      = Unprocessable(ErrCodeInvalidQuantity, "Quantity must be greater than zero")
	ErrUserNotFound         = NotFound(ErrCodeUserNotFound, "User not found")
	ErrOrderNotFound        = NotFound(ErrCodeOrderNotFound, "Order not found")
	ErrPaymentNotFound      = NotFound(ErrCodePaymentNotFound, "Payment not found")
	ErrDeliveryNotFound     = NotFound(ErrCodeDeliveryNotFound, "Delivery service not found")
	ErrCartLineNotFound     = NotFound(ErrCodeCartLineNotFound, "Product does not exist in cart")
	ErrComboNotFound        = NotFound(ErrCodeComboNotFound, "Combo item not found")
	ErrMixedCombo           = Unprocessable(ErrCodeComboNotFound, "Combo items must belong to the same combo")
	ErrInsufficientStock    = Unprocessable(ErrCodeInsufficientStock, "There are not enough products left, please try again")
	ErrInsufficientCart     = Unprocessable(ErrCodeInsufficientCart, "The number of products in the shopping cart is not enough, please try again")
	ErrOrderNotCancelable   = Forbidden(ErrCodeOrderNotCancelable, "Order cannot be canceled")
	ErrOrderCanceled        = Forbidden(ErrCodeOrderTerminal, "Order has been canceled")
	ErrOrderCompleted       = Forbidden(ErrCodeOrderTerminal, "Order has been completed")
	ErrInvalidStatus        = Unprocessable(ErrCodeInvalidStatus, "Unknown order status")
	ErrMissingShippingLabel = NotFound(ErrCodeOrderNotFound, "Missing order label")
	ErrCarrierCancelFailed  = Internal(ErrCodeCarrierFailure, "Internal server error")
	ErrStatusNotUpdated     = Internal(ErrCodeStatusUpdateConflict, "Order status could not be updated")
	ErrOrderNotPending      = Forbidden(ErrCodeForbidden, "Vouchers can only be applied to pending orders")
)
