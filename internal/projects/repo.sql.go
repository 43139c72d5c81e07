package projects

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mason-erp/mason-erp/internal/platform/db"
	"github.com/mason-erp/mason-erp/internal/shared"
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

func (r *Repository) CreateProject(ctx context.Context, p Project) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (name, location, supervisor_id, start_date)
		VALUES ($1, $2, NULLIF($3, 0), $4) RETURNING id`,
		p.Name, p.Location, p.SupervisorID, p.StartDate).Scan(&id)
	return id, err
}

func (r *Repository) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, location, COALESCE(supervisor_id, 0), start_date, created_at
		FROM projects WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Location, &p.SupervisorID, &p.StartDate, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	return p, nil
}

func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, location, COALESCE(supervisor_id, 0), start_date, created_at
		FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Location, &p.SupervisorID, &p.StartDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) SetSupervisor(ctx context.Context, projectID, supervisorID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE projects SET supervisor_id=$2 WHERE id=$1`, projectID, supervisorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *Repository) CreateWorker(ctx context.Context, w Worker) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO workers (project_id, name, category, phone, daily_wage)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		w.ProjectID, w.Name, w.Category, w.Phone, w.DailyWage).Scan(&id)
	return id, err
}

func (r *Repository) ListWorkers(ctx context.Context, projectID int64) ([]Worker, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, name, category, phone, daily_wage, created_at
		FROM workers WHERE project_id=$1 ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Worker
	for rows.Next() {
		var w Worker
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Name, &w.Category, &w.Phone, &w.DailyWage, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *Repository) CreateWorkerCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO worker_categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil && shared.IsUniqueViolation(err) {
		return 0, ErrDuplicateCategory
	}
	return id, err
}

func (r *Repository) ListWorkerCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM worker_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repository) ListAttendance(ctx context.Context, projectID int64, date time.Time) ([]AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, worker_id, date, present, shifts, overtime_hours
		FROM attendance WHERE project_id=$1 AND date=$2 ORDER BY worker_id`, projectID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AttendanceRecord
	for rows.Next() {
		var rec AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.WorkerID, &rec.Date, &rec.Present, &rec.Shifts, &rec.OvertimeHours); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertAttendance(ctx context.Context, rec AttendanceRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (project_id, worker_id, date, present, shifts, overtime_hours)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, worker_id, date)
		DO UPDATE SET present=$4, shifts=$5, overtime_hours=$6
		RETURNING id`,
		rec.ProjectID, rec.WorkerID, rec.Date, rec.Present, rec.Shifts, rec.OvertimeHours).Scan(&id)
	return id, err
}

func (r *Repository) InsertMessage(ctx context.Context, msg ChatMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, project_id, sender_id, recipient_id, body)
		VALUES ($1, $2, $3, NULLIF($4, 0), $5)`,
		msg.ID, msg.ProjectID, msg.SenderID, msg.RecipientID, msg.Body)
	return err
}

const chatColumns = `id, project_id, sender_id, COALESCE(recipient_id, 0), body, created_at`

func (r *Repository) ListGroupMessages(ctx context.Context, projectID int64, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+chatColumns+` FROM chat_messages
		WHERE project_id=$1 AND recipient_id IS NULL
		ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *Repository) ListPrivateMessages(ctx context.Context, projectID, memberA, memberB int64, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+chatColumns+` FROM chat_messages
		WHERE project_id=$1
		  AND ((sender_id=$2 AND recipient_id=$3) OR (sender_id=$3 AND recipient_id=$2))
		ORDER BY created_at DESC LIMIT $4`, projectID, memberA, memberB, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]ChatMessage, error) {
	defer rows.Close()
	var out []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.ProjectID, &msg.SenderID, &msg.RecipientID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

const progressColumns = `id, project_id, COALESCE(parent_id, 0), title, percentage, completed`

func (r *Repository) ListProgress(ctx context.Context, projectID int64) ([]ProgressItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+progressColumns+` FROM progress_items WHERE project_id=$1 ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProgressItem
	for rows.Next() {
		var item ProgressItem
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.ParentID, &item.Title, &item.Percentage, &item.Completed); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *Repository) InsertProgressComment(ctx context.Context, c ProgressComment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO progress_comments (item_id, author_id, body)
		VALUES ($1, $2, $3) RETURNING id`, c.ItemID, c.AuthorID, c.Body).Scan(&id)
	return id, err
}

func (r *Repository) ListProgressComments(ctx context.Context, itemID int64) ([]ProgressComment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, author_id, body, created_at
		FROM progress_comments WHERE item_id=$1 ORDER BY created_at`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProgressComment
	for rows.Next() {
		var c ProgressComment
		if err := rows.Scan(&c.ID, &c.ItemID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreatePaymentCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO payment_categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil && shared.IsUniqueViolation(err) {
		return 0, ErrDuplicateCategory
	}
	return id, err
}

func (r *Repository) ListPaymentCategories(ctx context.Context) ([]PaymentCategory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM payment_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentCategory
	for rows.Next() {
		var c PaymentCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Transactional checklist operations

func (r *txRepo) InsertProgressItem(ctx context.Context, item ProgressItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO progress_items (project_id, parent_id, title, percentage, completed)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5) RETURNING id`,
		item.ProjectID, item.ParentID, item.Title, item.Percentage, item.Completed).Scan(&id)
	return id, err
}

func (r *txRepo) GetProgressItemForUpdate(ctx context.Context, itemID int64) (ProgressItem, error) {
	var item ProgressItem
	err := r.tx.QueryRow(ctx, `
		SELECT `+progressColumns+` FROM progress_items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&item.ID, &item.ProjectID, &item.ParentID, &item.Title, &item.Percentage, &item.Completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressItem{}, ErrItemNotFound
		}
		return ProgressItem{}, err
	}
	return item, nil
}

func (r *txRepo) SetProgressPercentage(ctx context.Context, itemID int64, percentage float64, completed bool) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE progress_items SET percentage=$2, completed=$3 WHERE id=$1`, itemID, percentage, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) SumChildPercentage(ctx context.Context, parentID int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(percentage), 0) FROM progress_items WHERE parent_id=$1`, parentID).Scan(&total)
	return total, err
}

func (r *txRepo) DeleteProgressItem(ctx context.Context, itemID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM progress_items WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
