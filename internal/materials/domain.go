package materials

import (
	"fmt"
	"strings"
	"time"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// ItemStatus is shared by request line items and whole requests.
type ItemStatus string

const (
	StatusPending           ItemStatus = "Pending"
	StatusPartiallyApproved ItemStatus = "Partially Approved"
	StatusApproved          ItemStatus = "Approved"
	StatusRejected          ItemStatus = "Rejected"
	StatusPartiallyReceived ItemStatus = "Partially Received"
	StatusReceived          ItemStatus = "Received"
)

// Request is a material request raised by a project supervisor.
type Request struct {
	ID           int64
	RequestID    string
	ProjectID    int64
	SupervisorID int64
	Date         time.Time
	Status       ItemStatus
	Items        []RequestItem
	CreatedAt    time.Time
}

// RequestItem is one requested material line. Quantity is fixed at
// creation; ApprovedQty stays nil until the line is decided. ReceivedQty
// only ever grows and never exceeds ApprovedQty.
type RequestItem struct {
	ID           int64
	RequestRowID int64
	LineNo       int
	MaterialCode string
	Quantity     float64
	ApprovedQty  *float64
	RejectedQty  float64
	ReceivedQty  float64
	Status       ItemStatus
}

// Decided reports whether the approval decision was recorded.
func (i RequestItem) Decided() bool {
	return i.ApprovedQty != nil
}

// PendingQty is the approved-but-unreceived quantity, clamped at zero.
func (i RequestItem) PendingQty() float64 {
	if i.ApprovedQty == nil {
		return 0
	}
	pending := *i.ApprovedQty - i.ReceivedQty
	if pending < 0 {
		return 0
	}
	return pending
}

// Receipt records materials arriving on site. Items carry no request
// linkage; allocation against outstanding requests is computed.
type Receipt struct {
	ID           int64
	ReceiptID    string
	ProjectID    int64
	SupervisorID int64
	Date         time.Time
	Items        []ReceiptItem
	CreatedAt    time.Time
}

// ReceiptItem is one received material line. Unallocated holds the part
// of Quantity that exceeded all outstanding approved request quantity.
type ReceiptItem struct {
	ID           int64
	MaterialCode string
	Quantity     float64
	Unallocated  float64
}

// Usage records materials consumed on site, one record per project+date.
type Usage struct {
	ID           int64
	UsageID      string
	ProjectID    int64
	SupervisorID int64
	Date         time.Time
	Items        []UsageItem
	CreatedAt    time.Time
}

// UsageItem is one consumed material line.
type UsageItem struct {
	ID           int64
	MaterialCode string
	Quantity     float64
}

// UsageComment is a note attached to a usage item.
type UsageComment struct {
	ID          int64
	UsageItemID int64
	AuthorID    int64
	Text        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InventoryEntry is one material's project-local availability
// (received minus used).
type InventoryEntry struct {
	MaterialCode string  `json:"materialCode"`
	Quantity     float64 `json:"quantity"`
}

// Decision carries the approval verdict for one request line.
type Decision struct {
	MaterialCode string
	ApprovedQty  float64
	RejectedQty  float64
	Status       ItemStatus
}

var (
	// ErrRequestNotFound indicates the request is absent.
	ErrRequestNotFound = fmt.Errorf("materials: request %w", shared.ErrNotFound)
	// ErrUsageNotFound indicates the usage record is absent.
	ErrUsageNotFound = fmt.Errorf("materials: usage %w", shared.ErrNotFound)
	// ErrItemNotFound indicates the referenced line is absent.
	ErrItemNotFound = fmt.Errorf("materials: line item %w", shared.ErrNotFound)
	// ErrCommentNotFound indicates the referenced comment is absent.
	ErrCommentNotFound = fmt.Errorf("materials: comment %w", shared.ErrNotFound)
	// ErrMaterialNotFound indicates the material stock item is absent.
	ErrMaterialNotFound = fmt.Errorf("materials: material %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("materials: %w", shared.ErrValidation)
	// ErrInsufficientStock indicates project-local availability was exceeded.
	ErrInsufficientStock = fmt.Errorf("materials: %w", shared.ErrInsufficientStock)
)

// DecisionErrors collects every line that failed validation during a
// batch decision. When returned, no line was mutated.
type DecisionErrors struct {
	Errors []string
}

func (e *DecisionErrors) Error() string {
	return "materials: decision rejected: " + strings.Join(e.Errors, "; ")
}

// Unwrap tags the error as a validation failure.
func (e *DecisionErrors) Unwrap() error {
	return shared.ErrValidation
}
