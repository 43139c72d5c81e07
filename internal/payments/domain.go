package payments

import (
	"fmt"
	"time"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// Direction tags an entry as money in or money out.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Account is a named financial account with a running balance.
// Invariant: balance equals the initial balance plus all IN amounts
// minus all OUT amounts.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry is one dated, referenced movement on an account. ProjectID and
// Category are optional tags used by the per-project transaction feed.
type Entry struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"accountId"`
	Direction   Direction `json:"direction"`
	Amount      float64   `json:"amount"`
	Remark      string    `json:"remark,omitempty"`
	ProjectID   int64     `json:"projectId,omitempty"`
	Category    string    `json:"category,omitempty"`
	ReferenceID string    `json:"referenceId"`
	SubmittedBy int64     `json:"submittedBy"`
	Date        time.Time `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
}

var (
	// ErrAccountNotFound indicates the account is absent.
	ErrAccountNotFound = fmt.Errorf("payments: account %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("payments: %w", shared.ErrValidation)
	// ErrInsufficientFunds indicates the account balance cannot cover
	// the requested outflow.
	ErrInsufficientFunds = fmt.Errorf("payments: %w", shared.ErrInsufficientFunds)
	// ErrDuplicateAccount indicates the account name is already taken.
	ErrDuplicateAccount = fmt.Errorf("payments: account name taken: %w", shared.ErrConflict)
)
