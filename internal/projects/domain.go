package projects

import (
	"fmt"
	"time"

	"github.com/mason-erp/mason-erp/internal/payments"
	"github.com/mason-erp/mason-erp/internal/shared"
)

// Project is a construction site tracked by the back office.
type Project struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Location     string    `json:"location,omitempty"`
	SupervisorID int64     `json:"supervisorId,omitempty"`
	StartDate    time.Time `json:"startDate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Worker is one roster entry on a project.
type Worker struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	DailyWage float64   `json:"dailyWage"`
	CreatedAt time.Time `json:"createdAt"`
}

// AttendanceRecord is one worker's attendance for one date.
type AttendanceRecord struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"projectId"`
	WorkerID      int64     `json:"workerId"`
	Date          time.Time `json:"date"`
	Present       bool      `json:"present"`
	Shifts        float64   `json:"shifts"`
	OvertimeHours float64   `json:"overtimeHours"`
}

// ChatMessage is one message in a project's group chat or a private
// conversation between two members. RecipientID zero means group.
type ChatMessage struct {
	ID          string    `json:"id"`
	ProjectID   int64     `json:"projectId"`
	SenderID    int64     `json:"senderId"`
	RecipientID int64     `json:"recipientId,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProgressItem is one checklist entry. Items with a parent contribute
// their percentage to it; a parent's percentage is the clamped sum of
// its children and is never set directly.
type ProgressItem struct {
	ID         int64   `json:"id"`
	ProjectID  int64   `json:"projectId"`
	ParentID   int64   `json:"parentId,omitempty"`
	Title      string  `json:"title"`
	Percentage float64 `json:"percentage"`
	Completed  bool    `json:"completed"`
}

// ProgressComment is a note on a checklist item.
type ProgressComment struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"itemId"`
	AuthorID  int64     `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentCategory labels payment entries for reporting.
type PaymentCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Snapshot aggregates a project's ledgers into one view. Attendance is
// today's sheet; PaymentEntries is the tagged transaction feed.
type Snapshot struct {
	Project        Project            `json:"project"`
	Workers        []Worker           `json:"workers"`
	Attendance     []AttendanceRecord `json:"attendance"`
	TotalReceived  map[string]float64 `json:"totalReceived"`
	TotalUsed      map[string]float64 `json:"totalUsed"`
	Inventory      map[string]float64 `json:"inventory"`
	OpenRequests   int                `json:"openRequests"`
	ProgressItems  []ProgressItem     `json:"progressItems"`
	PaymentEntries []payments.Entry   `json:"paymentEntries"`
}

var (
	// ErrProjectNotFound indicates the project is absent.
	ErrProjectNotFound = fmt.Errorf("projects: project %w", shared.ErrNotFound)
	// ErrWorkerNotFound indicates the worker is absent.
	ErrWorkerNotFound = fmt.Errorf("projects: worker %w", shared.ErrNotFound)
	// ErrItemNotFound indicates the checklist item is absent.
	ErrItemNotFound = fmt.Errorf("projects: checklist item %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("projects: %w", shared.ErrValidation)
	// ErrDuplicateCategory indicates the category name is taken.
	ErrDuplicateCategory = fmt.Errorf("projects: category taken: %w", shared.ErrConflict)
)
