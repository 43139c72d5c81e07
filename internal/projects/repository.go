package projects

import (
	"context"
	"time"
)

// RepositoryPort describes persistence for project collaboration records.
// These are plain documents; only the progress checklist needs a
// transactional recompute, kept behind WithTx.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	CreateProject(ctx context.Context, p Project) (int64, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)
	SetSupervisor(ctx context.Context, projectID, supervisorID int64) error

	CreateWorker(ctx context.Context, w Worker) (int64, error)
	ListWorkers(ctx context.Context, projectID int64) ([]Worker, error)
	CreateWorkerCategory(ctx context.Context, name string) (int64, error)
	ListWorkerCategories(ctx context.Context) ([]string, error)

	ListAttendance(ctx context.Context, projectID int64, date time.Time) ([]AttendanceRecord, error)
	UpsertAttendance(ctx context.Context, rec AttendanceRecord) (int64, error)

	InsertMessage(ctx context.Context, msg ChatMessage) error
	ListGroupMessages(ctx context.Context, projectID int64, limit int) ([]ChatMessage, error)
	ListPrivateMessages(ctx context.Context, projectID, memberA, memberB int64, limit int) ([]ChatMessage, error)

	ListProgress(ctx context.Context, projectID int64) ([]ProgressItem, error)
	InsertProgressComment(ctx context.Context, c ProgressComment) (int64, error)
	ListProgressComments(ctx context.Context, itemID int64) ([]ProgressComment, error)

	CreatePaymentCategory(ctx context.Context, name string) (int64, error)
	ListPaymentCategories(ctx context.Context) ([]PaymentCategory, error)
}

// TxRepository exposes the checklist mutations that must commit together
// with the parent percentage recompute.
type TxRepository interface {
	InsertProgressItem(ctx context.Context, item ProgressItem) (int64, error)
	GetProgressItemForUpdate(ctx context.Context, itemID int64) (ProgressItem, error)
	SetProgressPercentage(ctx context.Context, itemID int64, percentage float64, completed bool) error
	SumChildPercentage(ctx context.Context, parentID int64) (float64, error)
	DeleteProgressItem(ctx context.Context, itemID int64) error
}
