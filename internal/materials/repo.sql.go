package materials

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mason-erp/mason-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const requestColumns = `id, request_id, project_id, supervisor_id, date, status, created_at`

func scanRequestRow(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.RequestID, &req.ProjectID, &req.SupervisorID, &req.Date, &req.Status, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, err
	}
	return req, nil
}

func loadRequestItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, requestRowID int64, lock bool) ([]RequestItem, error) {
	query := `
		SELECT id, request_row_id, line_no, material_code, quantity, approved_qty, rejected_qty, received_qty, status
		FROM material_request_items WHERE request_row_id=$1 ORDER BY line_no`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, requestRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RequestItem
	for rows.Next() {
		var item RequestItem
		if err := rows.Scan(&item.ID, &item.RequestRowID, &item.LineNo, &item.MaterialCode, &item.Quantity, &item.ApprovedQty, &item.RejectedQty, &item.ReceivedQty, &item.Status); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetRequest returns a request with its items.
func (r *Repository) GetRequest(ctx context.Context, requestID string) (Request, error) {
	req, err := scanRequestRow(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM material_requests WHERE request_id=$1`, requestID))
	if err != nil {
		return Request{}, err
	}
	req.Items, err = loadRequestItems(ctx, r.pool, req.ID, false)
	return req, err
}

// ListRequests returns every request of a project, newest first.
func (r *Repository) ListRequests(ctx context.Context, projectID int64) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM material_requests WHERE project_id=$1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.RequestID, &req.ProjectID, &req.SupervisorID, &req.Date, &req.Status, &req.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range requests {
		items, err := loadRequestItems(ctx, r.pool, requests[i].ID, false)
		if err != nil {
			return nil, err
		}
		requests[i].Items = items
	}
	return requests, nil
}

// OutstandingApproved sums approved-but-unreceived quantity for one
// material across the project, clamped at zero per line.
func (r *Repository) OutstandingApproved(ctx context.Context, projectID int64, materialCode string) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(GREATEST(i.approved_qty - i.received_qty, 0)), 0)
		FROM material_request_items i
		JOIN material_requests r ON r.id = i.request_row_id
		WHERE r.project_id = $1
		  AND i.material_code = $2
		  AND i.approved_qty IS NOT NULL
		  AND i.status <> 'Rejected'`, projectID, materialCode).Scan(&total)
	return total, err
}

// ListReceipts returns project receipts, newest first.
func (r *Repository) ListReceipts(ctx context.Context, projectID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, receipt_id, project_id, supervisor_id, date, created_at
		FROM material_receipts WHERE project_id=$1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []Receipt
	for rows.Next() {
		var receipt Receipt
		if err := rows.Scan(&receipt.ID, &receipt.ReceiptID, &receipt.ProjectID, &receipt.SupervisorID, &receipt.Date, &receipt.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range receipts {
		itemRows, err := r.pool.Query(ctx, `
			SELECT id, material_code, quantity, unallocated
			FROM material_receipt_items WHERE receipt_row_id=$1 ORDER BY id`, receipts[i].ID)
		if err != nil {
			return nil, err
		}
		for itemRows.Next() {
			var item ReceiptItem
			if err := itemRows.Scan(&item.ID, &item.MaterialCode, &item.Quantity, &item.Unallocated); err != nil {
				itemRows.Close()
				return nil, err
			}
			receipts[i].Items = append(receipts[i].Items, item)
		}
		if err := itemRows.Err(); err != nil {
			itemRows.Close()
			return nil, err
		}
		itemRows.Close()
	}
	return receipts, nil
}

func loadUsageItems(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, usageRowID int64) ([]UsageItem, error) {
	rows, err := q.Query(ctx, `SELECT id, material_code, quantity FROM material_usage_items WHERE usage_row_id=$1 ORDER BY id`, usageRowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UsageItem
	for rows.Next() {
		var item UsageItem
		if err := rows.Scan(&item.ID, &item.MaterialCode, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanUsageRow(row pgx.Row) (Usage, error) {
	var usage Usage
	err := row.Scan(&usage.ID, &usage.UsageID, &usage.ProjectID, &usage.SupervisorID, &usage.Date, &usage.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usage{}, ErrUsageNotFound
		}
		return Usage{}, err
	}
	return usage, nil
}

// GetUsage returns one usage record with items.
func (r *Repository) GetUsage(ctx context.Context, usageID string) (Usage, error) {
	usage, err := scanUsageRow(r.pool.QueryRow(ctx, `
		SELECT id, usage_id, project_id, supervisor_id, date, created_at
		FROM material_usages WHERE usage_id=$1`, usageID))
	if err != nil {
		return Usage{}, err
	}
	usage.Items, err = loadUsageItems(ctx, r.pool, usage.ID)
	return usage, err
}

// ListUsages returns usages for a project, optionally for one date.
func (r *Repository) ListUsages(ctx context.Context, projectID int64, date *time.Time) ([]Usage, error) {
	query := `
		SELECT id, usage_id, project_id, supervisor_id, date, created_at
		FROM material_usages WHERE project_id=$1`
	args := []any{projectID}
	if date != nil {
		query += ` AND date = $2`
		args = append(args, date.Truncate(24*time.Hour))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var usages []Usage
	for rows.Next() {
		var usage Usage
		if err := rows.Scan(&usage.ID, &usage.UsageID, &usage.ProjectID, &usage.SupervisorID, &usage.Date, &usage.CreatedAt); err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range usages {
		items, err := loadUsageItems(ctx, r.pool, usages[i].ID)
		if err != nil {
			return nil, err
		}
		usages[i].Items = items
	}
	return usages, nil
}

// ProjectInventory computes received minus used per material for a project.
func (r *Repository) ProjectInventory(ctx context.Context, projectID int64) ([]InventoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT material_code, SUM(qty) AS quantity FROM (
			SELECT ri.material_code, ri.quantity AS qty
			FROM material_receipt_items ri
			JOIN material_receipts rc ON rc.id = ri.receipt_row_id
			WHERE rc.project_id = $1
			UNION ALL
			SELECT ui.material_code, -ui.quantity AS qty
			FROM material_usage_items ui
			JOIN material_usages u ON u.id = ui.usage_row_id
			WHERE u.project_id = $1
		) deltas
		GROUP BY material_code
		HAVING SUM(qty) > 0
		ORDER BY material_code`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []InventoryEntry
	for rows.Next() {
		var entry InventoryEntry
		if err := rows.Scan(&entry.MaterialCode, &entry.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const availabilityQuery = `
	SELECT COALESCE((
		SELECT SUM(ri.quantity)
		FROM material_receipt_items ri
		JOIN material_receipts rc ON rc.id = ri.receipt_row_id
		WHERE rc.project_id = $1 AND ri.material_code = $2
	), 0) - COALESCE((
		SELECT SUM(ui.quantity)
		FROM material_usage_items ui
		JOIN material_usages u ON u.id = ui.usage_row_id
		WHERE u.project_id = $1 AND ui.material_code = $2
	), 0)`

// ProjectAvailability computes received minus used for one material.
func (r *Repository) ProjectAvailability(ctx context.Context, projectID int64, materialCode string) (float64, error) {
	var available float64
	err := r.pool.QueryRow(ctx, availabilityQuery, projectID, materialCode).Scan(&available)
	return available, err
}

// ListComments returns comments on one usage item, oldest first.
func (r *Repository) ListComments(ctx context.Context, usageItemID int64) ([]UsageComment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, usage_item_id, author_id, body, created_at, updated_at
		FROM usage_item_comments WHERE usage_item_id=$1 ORDER BY created_at`, usageItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []UsageComment
	for rows.Next() {
		var c UsageComment
		if err := rows.Scan(&c.ID, &c.UsageItemID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Transactional operations

func (r *txRepo) InsertRequest(ctx context.Context, req Request) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_requests (request_id, project_id, supervisor_id, date, status)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		req.RequestID, req.ProjectID, req.SupervisorID, req.Date, req.Status).Scan(&id)
	return id, err
}

func (r *txRepo) InsertRequestItem(ctx context.Context, item RequestItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_request_items (request_row_id, line_no, material_code, quantity, approved_qty, rejected_qty, received_qty, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		item.RequestRowID, item.LineNo, item.MaterialCode, item.Quantity, item.ApprovedQty, item.RejectedQty, item.ReceivedQty, item.Status).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateRequestItem(ctx context.Context, item RequestItem) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE material_request_items
		SET quantity=$2, approved_qty=$3, rejected_qty=$4, received_qty=$5, status=$6
		WHERE id=$1`,
		item.ID, item.Quantity, item.ApprovedQty, item.RejectedQty, item.ReceivedQty, item.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) DeleteRequestItem(ctx context.Context, itemID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM material_request_items WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) UpdateRequestStatus(ctx context.Context, requestRowID int64, status ItemStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE material_requests SET status=$2 WHERE id=$1`, requestRowID, status)
	return err
}

func (r *txRepo) GetRequestForUpdate(ctx context.Context, requestID string) (Request, error) {
	req, err := scanRequestRow(r.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM material_requests WHERE request_id=$1 FOR UPDATE`, requestID))
	if err != nil {
		return Request{}, err
	}
	req.Items, err = loadRequestItems(ctx, r.tx, req.ID, true)
	return req, err
}

func (r *txRepo) ListOutstandingForUpdate(ctx context.Context, projectID int64, materialCode string) ([]Request, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT DISTINCT r.id, r.request_id, r.project_id, r.supervisor_id, r.date, r.status, r.created_at
		FROM material_requests r
		JOIN material_request_items i ON i.request_row_id = r.id
		WHERE r.project_id = $1
		  AND i.material_code = $2
		  AND i.status IN ('Approved', 'Partially Approved')
		ORDER BY r.created_at, r.id
		FOR UPDATE OF r`, projectID, materialCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.RequestID, &req.ProjectID, &req.SupervisorID, &req.Date, &req.Status, &req.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range requests {
		items, err := loadRequestItems(ctx, r.tx, requests[i].ID, true)
		if err != nil {
			return nil, err
		}
		requests[i].Items = items
	}
	return requests, nil
}

func (r *txRepo) InsertReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_receipts (receipt_id, project_id, supervisor_id, date)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		receipt.ReceiptID, receipt.ProjectID, receipt.SupervisorID, receipt.Date).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReceiptItem(ctx context.Context, receiptRowID int64, item ReceiptItem) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO material_receipt_items (receipt_row_id, material_code, quantity, unallocated)
		VALUES ($1, $2, $3, $4)`,
		receiptRowID, item.MaterialCode, item.Quantity, item.Unallocated)
	return err
}

func (r *txRepo) InsertUsage(ctx context.Context, usage Usage) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_usages (usage_id, project_id, supervisor_id, date)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		usage.UsageID, usage.ProjectID, usage.SupervisorID, usage.Date).Scan(&id)
	return id, err
}

func (r *txRepo) GetUsageByProjectDateForUpdate(ctx context.Context, projectID int64, date time.Time) (Usage, error) {
	usage, err := scanUsageRow(r.tx.QueryRow(ctx, `
		SELECT id, usage_id, project_id, supervisor_id, date, created_at
		FROM material_usages WHERE project_id=$1 AND date=$2 FOR UPDATE`, projectID, date))
	if err != nil {
		return Usage{}, err
	}
	usage.Items, err = loadUsageItems(ctx, r.tx, usage.ID)
	return usage, err
}

func (r *txRepo) GetUsageForUpdate(ctx context.Context, usageID string) (Usage, error) {
	usage, err := scanUsageRow(r.tx.QueryRow(ctx, `
		SELECT id, usage_id, project_id, supervisor_id, date, created_at
		FROM material_usages WHERE usage_id=$1 FOR UPDATE`, usageID))
	if err != nil {
		return Usage{}, err
	}
	usage.Items, err = loadUsageItems(ctx, r.tx, usage.ID)
	return usage, err
}

func (r *txRepo) InsertUsageItem(ctx context.Context, usageRowID int64, item UsageItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO material_usage_items (usage_row_id, material_code, quantity)
		VALUES ($1, $2, $3) RETURNING id`,
		usageRowID, item.MaterialCode, item.Quantity).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateUsageItemQty(ctx context.Context, itemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE material_usage_items SET quantity=$2 WHERE id=$1`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) DeleteUsageItem(ctx context.Context, itemID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM material_usage_items WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) LockMaterial(ctx context.Context, materialCode string) error {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM stock_items WHERE code=$1 AND kind='MATERIAL' FOR UPDATE`, materialCode).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMaterialNotFound
		}
		return err
	}
	return nil
}

func (r *txRepo) ProjectAvailability(ctx context.Context, projectID int64, materialCode string) (float64, error) {
	var available float64
	err := r.tx.QueryRow(ctx, availabilityQuery, projectID, materialCode).Scan(&available)
	return available, err
}

func (r *txRepo) ApplyMaterialStockDelta(ctx context.Context, materialCode string, delta float64, refModule, refID string) error {
	var itemID int64
	err := r.tx.QueryRow(ctx, `
		UPDATE stock_items SET qty_on_hand = qty_on_hand + $2
		WHERE code=$1 AND kind='MATERIAL'
		RETURNING id`, materialCode, delta).Scan(&itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMaterialNotFound
		}
		return err
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, delta, ref_module, ref_id, note)
		VALUES ($1, $2, $3, $4, '')`, itemID, delta, refModule, refID)
	return err
}

func (r *txRepo) InsertComment(ctx context.Context, c UsageComment) (UsageComment, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO usage_item_comments (usage_item_id, author_id, body)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`,
		c.UsageItemID, c.AuthorID, c.Text).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *txRepo) UpdateComment(ctx context.Context, commentID int64, text string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE usage_item_comments SET body=$2, updated_at=NOW() WHERE id=$1`, commentID, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func (r *txRepo) DeleteComment(ctx context.Context, commentID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM usage_item_comments WHERE id=$1`, commentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}
