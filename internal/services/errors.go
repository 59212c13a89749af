package services

import "errors"

// Domain-rule and lookup failures the handlers map to 4xx responses.
// Anything else coming out of a service is treated as internal.
var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvalidCustomer      = errors.New("invalid customer")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAlreadyPaid          = errors.New("invoice already paid")
	ErrAmountExceedsInvoice = errors.New("payment amount cannot exceed invoice amount")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrAmountTooSmall       = errors.New("amount below processor minimum")
)

// ValidationError carries the first offending field's message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
