package event

import (
	"encoding/json"
	"time"
)

// Type classifies a budget event. Events are immutable facts; the current
// balance of any month is derived by replaying them in sequence order.
type Type string

const (
	TypeBudgetIn           Type = "BUDGET_IN"
	TypeExpense            Type = "EXPENSE"
	TypeExpenseReversal    Type = "EXPENSE_REVERSAL"
	TypeAdjustmentIncrease Type = "BUDGET_ADJUSTMENT_INCREASE"
	TypeAdjustmentDecrease Type = "BUDGET_ADJUSTMENT_DECREASE"
	TypeBudgetReset        Type = "BUDGET_RESET"
)

// SyncState tracks a locally created event's progress toward the server.
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateSyncing SyncState = "syncing"
	SyncStateSynced  SyncState = "synced"
	SyncStateFailed  SyncState = "failed"
)

const (
	// SystemAuthor is the author name on events the application creates itself
	// (default monthly budgets, adjustments, resets).
	SystemAuthor = "SYSTEM"

	// MonthlyBudgetDescription is the fixed description of the auto-created
	// monthly BUDGET_IN event. Together with (year, month, event type, author)
	// it forms the server-side uniqueness key that makes creation idempotent.
	MonthlyBudgetDescription = "기본 월별 예산"
)

// BudgetEvent is the atomic unit of truth. The server assigns positive
// sequences; events not yet acknowledged by the server carry a negative
// temporary sequence and IsLocalOnly=true.
type BudgetEvent struct {
	Sequence          int64           `json:"sequence"`
	EventType         Type            `json:"eventType"`
	EventDate         time.Time       `json:"eventDate"`
	Year              int             `json:"year"`
	Month             int             `json:"month"`
	AuthorName        string          `json:"authorName"`
	Amount            int64           `json:"amount"`
	StoreName         *string         `json:"storeName,omitempty"`
	Description       *string         `json:"description,omitempty"`
	ReceiptImage      []byte          `json:"receiptImage,omitempty"`
	OcrRawData        json.RawMessage `json:"ocrRawData,omitempty"`
	ReferenceSequence *int64          `json:"referenceSequence,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`

	// Client-only bookkeeping, never sent over the wire.
	IsLocalOnly bool      `json:"-"`
	SyncState   SyncState `json:"-"`
	PendingID   string    `json:"-"`
}

// CreatePayload is the create-event request shape: an event sans sequence.
type CreatePayload struct {
	EventType         Type            `json:"eventType"`
	EventDate         time.Time       `json:"eventDate"`
	Year              int             `json:"year"`
	Month             int             `json:"month"`
	AuthorName        string          `json:"authorName"`
	Amount            int64           `json:"amount"`
	StoreName         *string         `json:"storeName,omitempty"`
	Description       *string         `json:"description,omitempty"`
	ReceiptImage      []byte          `json:"receiptImage,omitempty"`
	OcrRawData        json.RawMessage `json:"ocrRawData,omitempty"`
	ReferenceSequence *int64          `json:"referenceSequence,omitempty"`
}

// Validate checks the payload's structural invariants.
func (p *CreatePayload) Validate() error {
	switch p.EventType {
	case TypeBudgetIn, TypeExpense, TypeExpenseReversal,
		TypeAdjustmentIncrease, TypeAdjustmentDecrease, TypeBudgetReset:
	default:
		return ErrInvalidEventType
	}

	if p.Amount < 0 {
		return ErrNegativeAmount
	}
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.AuthorName == "" {
		return ErrMissingAuthor
	}
	if p.EventType == TypeExpenseReversal && p.ReferenceSequence == nil {
		return ErrMissingReference
	}
	return nil
}

// IsDefaultMonthlyBudget reports whether the payload is the system-generated
// recurring monthly budget event.
func (p *CreatePayload) IsDefaultMonthlyBudget() bool {
	return p.EventType == TypeBudgetIn &&
		p.AuthorName == SystemAuthor &&
		derefString(p.Description) == MonthlyBudgetDescription
}

// Incoming reports whether the type adds to the month's budget.
func (t Type) Incoming() bool {
	return t == TypeBudgetIn || t == TypeAdjustmentIncrease
}

// Outgoing reports whether the type subtracts from the month's budget.
func (t Type) Outgoing() bool {
	return t == TypeExpense || t == TypeAdjustmentDecrease
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
