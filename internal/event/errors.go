package event

import "errors"

// Payload validation errors.
var (
	ErrInvalidEventType = errors.New("invalid event type")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
	ErrInvalidMonth     = errors.New("month must be between 1 and 12")
	ErrMissingAuthor    = errors.New("author name is required")
	ErrMissingReference = errors.New("expense reversal requires a reference sequence")
)

// Log errors.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrAlreadyReversed = errors.New("expense already reversed")
	ErrNotAnExpense    = errors.New("referenced event is not an expense")
)
