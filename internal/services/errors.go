package services

import "errors"

// Sentinel errors of the payment subsystem. Handlers map these onto HTTP
// statuses; services wrap them with context via fmt.Errorf("%w").
var (
	// ErrValidation marks a malformed or unsupported request, rejected
	// before any state change.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound covers missing records and cross-user access alike, so a
	// caller cannot probe for the existence of other users' orders.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the order or refund is not in a status that
	// permits the requested operation. Nothing is mutated.
	ErrInvalidState = errors.New("invalid state for requested operation")

	// ErrSignatureInvalid means a callback failed CheckMacValue verification.
	ErrSignatureInvalid = errors.New("callback signature verification failed")

	// ErrDuplicateOrderNo is an order number generation collision; order
	// creation retries with a fresh number a bounded number of times.
	ErrDuplicateOrderNo = errors.New("duplicate order number")
)
