package payments

import (
	"context"
	"errors"
	"fmt"

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

const entryColumns = `id, account_id, direction, amount, remark, COALESCE(project_id, 0), category, reference_id, submitted_by, date, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	err := row.Scan(&account.ID, &account.Name, &account.Balance, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// GetAccount returns one account.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT id, name, balance, created_at FROM payment_accounts WHERE id=$1`, id))
}

// ListAccounts returns every account ordered by name.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, balance, created_at FROM payment_accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var account Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Balance, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// ListEntries returns an account's entries newest first, optionally for
// one direction.
func (r *Repository) ListEntries(ctx context.Context, accountID int64, direction Direction, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + entryColumns + ` FROM payment_entries WHERE account_id=$1`
	args := []any{accountID}
	if direction != "" {
		query += ` AND direction=$2`
		args = append(args, direction)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	return r.queryEntries(ctx, query, args...)
}

// ListProjectEntries returns every entry tagged with the project,
// newest first, across all accounts.
func (r *Repository) ListProjectEntries(ctx context.Context, projectID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM payment_entries
		WHERE project_id=$1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Direction, &entry.Amount,
			&entry.Remark, &entry.ProjectID, &entry.Category, &entry.ReferenceID,
			&entry.SubmittedBy, &entry.Date, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Transactional operations

func (r *txRepo) CreateAccount(ctx context.Context, account Account) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO payment_accounts (name, balance) VALUES ($1, $2) RETURNING id`,
		account.Name, account.Balance).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return 0, ErrDuplicateAccount
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT id, name, balance, created_at FROM payment_accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) SetBalance(ctx context.Context, accountID int64, balance float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payment_accounts SET balance=$2 WHERE id=$1`, accountID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepo) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO payment_entries (account_id, direction, amount, remark, project_id, category, reference_id, submitted_by, date)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7, $8, $9) RETURNING id`,
		entry.AccountID, entry.Direction, entry.Amount, entry.Remark, entry.ProjectID,
		entry.Category, entry.ReferenceID, entry.SubmittedBy, entry.Date).Scan(&id)
	return id, err
}
