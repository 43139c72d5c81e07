package projects

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mason-erp/mason-erp/internal/materials"
	"github.com/mason-erp/mason-erp/internal/payments"
	"github.com/mason-erp/mason-erp/internal/shared"
)

// MaterialsPort reads the material ledgers feeding the project snapshot.
type MaterialsPort interface {
	ListRequests(ctx context.Context, projectID int64) ([]materials.Request, error)
	ListReceipts(ctx context.Context, projectID int64) ([]materials.Receipt, error)
	ListUsages(ctx context.Context, projectID int64, date *time.Time) ([]materials.Usage, error)
}

// PaymentsPort reads the tagged transaction feed for the snapshot.
type PaymentsPort interface {
	ListProjectEntries(ctx context.Context, projectID int64, limit int) ([]payments.Entry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the collaboration records around a project.
type Service struct {
	repo     RepositoryPort
	material MaterialsPort
	payment  PaymentsPort
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, material MaterialsPort, payment PaymentsPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, material: material, payment: payment, audit: audit, logger: logger}
}

// CreateProject registers a project.
func (s *Service) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.Name == "" {
		return Project{}, fmt.Errorf("project name required: %w", ErrValidation)
	}
	if p.StartDate.IsZero() {
		p.StartDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	id, err := s.repo.CreateProject(ctx, p)
	if err != nil {
		return Project{}, err
	}
	p.ID = id
	return p, nil
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, id int64) (Project, error) {
	return s.repo.GetProject(ctx, id)
}

// ListProjects returns every project, newest first.
func (s *Service) ListProjects(ctx context.Context) ([]Project, error) {
	return s.repo.ListProjects(ctx)
}

// AssignSupervisor sets the project's supervisor.
func (s *Service) AssignSupervisor(ctx context.Context, projectID, supervisorID int64) error {
	if supervisorID <= 0 {
		return fmt.Errorf("supervisor required: %w", ErrValidation)
	}
	return s.repo.SetSupervisor(ctx, projectID, supervisorID)
}

// AddWorker puts a worker on the project roster.
func (s *Service) AddWorker(ctx context.Context, w Worker) (Worker, error) {
	if w.ProjectID <= 0 || w.Name == "" {
		return Worker{}, fmt.Errorf("project and worker name required: %w", ErrValidation)
	}
	if w.DailyWage < 0 {
		return Worker{}, fmt.Errorf("daily wage cannot be negative: %w", ErrValidation)
	}
	id, err := s.repo.CreateWorker(ctx, w)
	if err != nil {
		return Worker{}, err
	}
	w.ID = id
	return w, nil
}

// ListWorkers returns the project roster.
func (s *Service) ListWorkers(ctx context.Context, projectID int64) ([]Worker, error) {
	return s.repo.ListWorkers(ctx, projectID)
}

// AddWorkerCategory registers a roster category.
func (s *Service) AddWorkerCategory(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("category name required: %w", ErrValidation)
	}
	_, err := s.repo.CreateWorkerCategory(ctx, name)
	return err
}

// ListWorkerCategories returns the known categories.
func (s *Service) ListWorkerCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListWorkerCategories(ctx)
}

// GetAttendance returns the sheet for one project and date, creating an
// absent row for every rostered worker not yet recorded so the sheet is
// always complete.
func (s *Service) GetAttendance(ctx context.Context, projectID int64, date time.Time) ([]AttendanceRecord, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	workers, err := s.repo.ListWorkers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListAttendance(ctx, projectID, day)
	if err != nil {
		return nil, err
	}
	recorded := make(map[int64]bool, len(existing))
	for _, rec := range existing {
		recorded[rec.WorkerID] = true
	}
	for _, w := range workers {
		if recorded[w.ID] {
			continue
		}
		rec := AttendanceRecord{ProjectID: projectID, WorkerID: w.ID, Date: day}
		if rec.ID, err = s.repo.UpsertAttendance(ctx, rec); err != nil {
			return nil, err
		}
		existing = append(existing, rec)
	}
	return existing, nil
}

// RecordAttendance upserts one worker's attendance for a date.
func (s *Service) RecordAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	if rec.ProjectID <= 0 || rec.WorkerID <= 0 {
		return AttendanceRecord{}, fmt.Errorf("project and worker required: %w", ErrValidation)
	}
	if rec.Shifts < 0 || rec.OvertimeHours < 0 {
		return AttendanceRecord{}, fmt.Errorf("shifts and overtime cannot be negative: %w", ErrValidation)
	}
	rec.Date = rec.Date.UTC().Truncate(24 * time.Hour)
	id, err := s.repo.UpsertAttendance(ctx, rec)
	if err != nil {
		return AttendanceRecord{}, err
	}
	rec.ID = id
	return rec, nil
}

// PostMessage appends a chat message. RecipientID zero posts to the
// project group.
func (s *Service) PostMessage(ctx context.Context, projectID, senderID, recipientID int64, body string) (ChatMessage, error) {
	if body == "" {
		return ChatMessage{}, fmt.Errorf("message body required: %w", ErrValidation)
	}
	if projectID <= 0 || senderID <= 0 {
		return ChatMessage{}, fmt.Errorf("project and sender required: %w", ErrValidation)
	}
	msg := ChatMessage{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// ListGroupMessages returns the project's group chat, newest first.
func (s *Service) ListGroupMessages(ctx context.Context, projectID int64, limit int) ([]ChatMessage, error) {
	return s.repo.ListGroupMessages(ctx, projectID, limit)
}

// ListPrivateMessages returns a two-member conversation, newest first.
func (s *Service) ListPrivateMessages(ctx context.Context, projectID, memberA, memberB int64, limit int) ([]ChatMessage, error) {
	return s.repo.ListPrivateMessages(ctx, projectID, memberA, memberB, limit)
}

// AddProgressItem adds a checklist entry, optionally under a parent.
func (s *Service) AddProgressItem(ctx context.Context, projectID, parentID int64, title string) (ProgressItem, error) {
	if projectID <= 0 || title == "" {
		return ProgressItem{}, fmt.Errorf("project and title required: %w", ErrValidation)
	}
	item := ProgressItem{ProjectID: projectID, ParentID: parentID, Title: title}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if parentID != 0 {
			if _, err := tx.GetProgressItemForUpdate(ctx, parentID); err != nil {
				return err
			}
		}
		var err error
		item.ID, err = tx.InsertProgressItem(ctx, item)
		return err
	})
	if err != nil {
		return ProgressItem{}, err
	}
	return item, nil
}

// SetProgressPercentage updates a checklist entry's percentage and
// recomputes its parent from the child sum, clamped at 100. An entry is
// completed when it reaches 100.
func (s *Service) SetProgressPercentage(ctx context.Context, itemID int64, percentage float64) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("percentage must be between 0 and 100: %w", ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetProgressItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if err := tx.SetProgressPercentage(ctx, itemID, percentage, percentage >= 100); err != nil {
			return err
		}
		return s.recomputeParent(ctx, tx, item.ParentID)
	})
}

// RemoveProgressItem deletes a checklist entry and refreshes its parent.
func (s *Service) RemoveProgressItem(ctx context.Context, itemID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetProgressItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if err := tx.DeleteProgressItem(ctx, itemID); err != nil {
			return err
		}
		return s.recomputeParent(ctx, tx, item.ParentID)
	})
}

func (s *Service) recomputeParent(ctx context.Context, tx TxRepository, parentID int64) error {
	if parentID == 0 {
		return nil
	}
	if _, err := tx.GetProgressItemForUpdate(ctx, parentID); err != nil {
		return err
	}
	total, err := tx.SumChildPercentage(ctx, parentID)
	if err != nil {
		return err
	}
	if total > 100 {
		total = 100
	}
	return tx.SetProgressPercentage(ctx, parentID, total, total >= 100)
}

// ListProgress returns the project checklist.
func (s *Service) ListProgress(ctx context.Context, projectID int64) ([]ProgressItem, error) {
	return s.repo.ListProgress(ctx, projectID)
}

// AddProgressComment attaches a note to a checklist entry.
func (s *Service) AddProgressComment(ctx context.Context, itemID, authorID int64, body string) (ProgressComment, error) {
	if body == "" {
		return ProgressComment{}, fmt.Errorf("comment body required: %w", ErrValidation)
	}
	c := ProgressComment{ItemID: itemID, AuthorID: authorID, Body: body}
	id, err := s.repo.InsertProgressComment(ctx, c)
	if err != nil {
		return ProgressComment{}, err
	}
	c.ID = id
	return c, nil
}

// ListProgressComments returns notes on a checklist entry.
func (s *Service) ListProgressComments(ctx context.Context, itemID int64) ([]ProgressComment, error) {
	return s.repo.ListProgressComments(ctx, itemID)
}

// AddPaymentCategory registers a payment label.
func (s *Service) AddPaymentCategory(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("category name required: %w", ErrValidation)
	}
	_, err := s.repo.CreatePaymentCategory(ctx, name)
	return err
}

// ListPaymentCategories returns the known payment labels.
func (s *Service) ListPaymentCategories(ctx context.Context) ([]PaymentCategory, error) {
	return s.repo.ListPaymentCategories(ctx)
}

// BuildSnapshot aggregates the project's roster, material ledgers and
// checklist into one view.
func (s *Service) BuildSnapshot(ctx context.Context, projectID int64) (Snapshot, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Project:       project,
		TotalReceived: make(map[string]float64),
		TotalUsed:     make(map[string]float64),
		Inventory:     make(map[string]float64),
	}
	if snap.Workers, err = s.repo.ListWorkers(ctx, projectID); err != nil {
		return Snapshot{}, err
	}
	if snap.Attendance, err = s.GetAttendance(ctx, projectID, time.Now()); err != nil {
		return Snapshot{}, err
	}
	if snap.ProgressItems, err = s.repo.ListProgress(ctx, projectID); err != nil {
		return Snapshot{}, err
	}
	if s.payment != nil {
		if snap.PaymentEntries, err = s.payment.ListProjectEntries(ctx, projectID, 0); err != nil {
			return Snapshot{}, err
		}
	}

	receipts, err := s.material.ListReceipts(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	for _, receipt := range receipts {
		for _, item := range receipt.Items {
			snap.TotalReceived[item.MaterialCode] += item.Quantity
		}
	}
	usages, err := s.material.ListUsages(ctx, projectID, nil)
	if err != nil {
		return Snapshot{}, err
	}
	for _, usage := range usages {
		for _, item := range usage.Items {
			snap.TotalUsed[item.MaterialCode] += item.Quantity
		}
	}
	for code, received := range snap.TotalReceived {
		if left := received - snap.TotalUsed[code]; left > 0 {
			snap.Inventory[code] = left
		}
	}

	requests, err := s.material.ListRequests(ctx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	for _, req := range requests {
		if req.Status != materials.StatusReceived && req.Status != materials.StatusRejected {
			snap.OpenRequests++
		}
	}
	return snap, nil
}
