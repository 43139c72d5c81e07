package materials

import (
	"context"
	"time"
)

// RepositoryPort describes read operations used outside transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, requestID string) (Request, error)
	ListRequests(ctx context.Context, projectID int64) ([]Request, error)
	OutstandingApproved(ctx context.Context, projectID int64, materialCode string) (float64, error)
	ListReceipts(ctx context.Context, projectID int64) ([]Receipt, error)
	GetUsage(ctx context.Context, usageID string) (Usage, error)
	ListUsages(ctx context.Context, projectID int64, date *time.Time) ([]Usage, error)
	ProjectInventory(ctx context.Context, projectID int64) ([]InventoryEntry, error)
	ProjectAvailability(ctx context.Context, projectID int64, materialCode string) (float64, error)
	ListComments(ctx context.Context, usageItemID int64) ([]UsageComment, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertRequest(ctx context.Context, req Request) (int64, error)
	InsertRequestItem(ctx context.Context, item RequestItem) (int64, error)
	UpdateRequestItem(ctx context.Context, item RequestItem) error
	DeleteRequestItem(ctx context.Context, itemID int64) error
	UpdateRequestStatus(ctx context.Context, requestRowID int64, status ItemStatus) error
	GetRequestForUpdate(ctx context.Context, requestID string) (Request, error)
	// ListOutstandingForUpdate returns, oldest first, every request of the
	// project holding an approved-but-unreceived line for the material,
	// with all rows locked for the duration of the transaction.
	ListOutstandingForUpdate(ctx context.Context, projectID int64, materialCode string) ([]Request, error)

	InsertReceipt(ctx context.Context, receipt Receipt) (int64, error)
	InsertReceiptItem(ctx context.Context, receiptRowID int64, item ReceiptItem) error

	InsertUsage(ctx context.Context, usage Usage) (int64, error)
	GetUsageByProjectDateForUpdate(ctx context.Context, projectID int64, date time.Time) (Usage, error)
	GetUsageForUpdate(ctx context.Context, usageID string) (Usage, error)
	InsertUsageItem(ctx context.Context, usageRowID int64, item UsageItem) (int64, error)
	UpdateUsageItemQty(ctx context.Context, itemID int64, qty float64) error
	DeleteUsageItem(ctx context.Context, itemID int64) error

	// LockMaterial serialises concurrent quantity checks for one material
	// by locking its stock item row; availability computed afterwards in
	// the same transaction cannot race another writer.
	LockMaterial(ctx context.Context, materialCode string) error
	ProjectAvailability(ctx context.Context, projectID int64, materialCode string) (float64, error)
	// ApplyMaterialStockDelta refreshes the denormalized global material
	// counter with the same delta recorded against project inventory.
	ApplyMaterialStockDelta(ctx context.Context, materialCode string, delta float64, refModule, refID string) error

	InsertComment(ctx context.Context, c UsageComment) (UsageComment, error)
	UpdateComment(ctx context.Context, commentID int64, text string) error
	DeleteComment(ctx context.Context, commentID int64) error
}
