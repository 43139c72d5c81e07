package stock

import (
	"context"
	"errors"

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

// CreateItem inserts a stock item with zero quantity unless provided.
func (r *Repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO stock_items (code, name, kind, purchase_unit, sales_unit, qty_on_hand)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		item.Code, item.Name, item.Kind, item.PurchaseUnit, item.SalesUnit, item.QtyOnHand).
		Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Item{}, ErrDuplicateItem
		}
		return Item{}, err
	}
	return item, nil
}

// GetItem fetches one item by code.
func (r *Repository) GetItem(ctx context.Context, code string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `
		SELECT id, code, name, kind, purchase_unit, sales_unit, qty_on_hand, created_at
		FROM stock_items WHERE code=$1`, code))
}

// ListItems lists items, optionally filtered by kind and a name/code search.
func (r *Repository) ListItems(ctx context.Context, kind ItemKind, search string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, name, kind, purchase_unit, sales_unit, qty_on_hand, created_at
		FROM stock_items
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR code ILIKE $2 || '%')
		ORDER BY name`, string(kind), search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.Kind, &item.PurchaseUnit, &item.SalesUnit, &item.QtyOnHand, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListMovements returns the most recent movements for an item.
func (r *Repository) ListMovements(ctx context.Context, code string, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.item_id, m.delta, m.ref_module, m.ref_id, m.note, m.created_at
		FROM stock_movements m
		JOIN stock_items i ON i.id = m.item_id
		WHERE i.code = $1
		ORDER BY m.id DESC
		LIMIT $2`, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Delta, &m.RefModule, &m.RefID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, code string) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `
		SELECT id, code, name, kind, purchase_unit, sales_unit, qty_on_hand, created_at
		FROM stock_items WHERE code=$1 FOR UPDATE`, code))
}

func (r *txRepo) SetItemQty(ctx context.Context, itemID int64, qty float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_items SET qty_on_hand=$2 WHERE id=$1`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, delta, ref_module, ref_id, note)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ItemID, m.Delta, m.RefModule, m.RefID, m.Note)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Kind, &item.PurchaseUnit, &item.SalesUnit, &item.QtyOnHand, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}
