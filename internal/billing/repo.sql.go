package billing

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

const invoiceColumns = `id, invoice_no, customer_name, customer_phone, date, billing_amount, discount, fuel_charge, delivery_status, created_at`

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNo, &inv.CustomerName, &inv.CustomerPhone, &inv.Date,
		&inv.BillingAmount, &inv.Discount, &inv.FuelCharge, &inv.DeliveryStatus, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func loadInvoiceChildren(ctx context.Context, q rowQuerier, inv *Invoice) error {
	rows, err := q.Query(ctx, `SELECT id, product_code, quantity, rate FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, inv.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.ProductCode, &item.Quantity, &item.Rate); err != nil {
			rows.Close()
			return err
		}
		inv.Items = append(inv.Items, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.Query(ctx, `SELECT id, amount, method, date FROM invoice_payments WHERE invoice_id=$1 ORDER BY id`, inv.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Amount, &p.Method, &p.Date); err != nil {
			rows.Close()
			return err
		}
		inv.Payments = append(inv.Payments, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.Query(ctx, `SELECT id, label, amount FROM invoice_expenses WHERE invoice_id=$1 ORDER BY id`, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Label, &e.Amount); err != nil {
			return err
		}
		inv.Expenses = append(inv.Expenses, e)
	}
	return rows.Err()
}

// GetInvoice returns one invoice with items, payments and expenses.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, err
	}
	if err := loadInvoiceChildren(ctx, r.pool, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// GetByNumber returns one invoice by its business number.
func (r *Repository) GetByNumber(ctx context.Context, invoiceNo string) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_no=$1`, invoiceNo))
	if err != nil {
		return Invoice{}, err
	}
	if err := loadInvoiceChildren(ctx, r.pool, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// ListInvoices returns invoices newest first, optionally filtered by
// invoice number or customer name.
func (r *Repository) ListInvoices(ctx context.Context, search string, limit int) ([]Invoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []any{}
	if search != "" {
		query += ` WHERE invoice_no ILIKE $1 OR customer_name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNo, &inv.CustomerName, &inv.CustomerPhone, &inv.Date,
			&inv.BillingAmount, &inv.Discount, &inv.FuelCharge, &inv.DeliveryStatus, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range invoices {
		if err := loadInvoiceChildren(ctx, r.pool, &invoices[i]); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// TotalQuantitySold sums one product's billed quantity across invoices.
func (r *Repository) TotalQuantitySold(ctx context.Context, productCode string) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM invoice_items WHERE product_code=$1`, productCode).Scan(&total)
	return total, err
}

// Suggestions returns invoice number and customer pairs matching prefix.
func (r *Repository) Suggestions(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT invoice_no, customer_name FROM invoices
		WHERE invoice_no ILIKE $1 OR customer_name ILIKE $1
		ORDER BY created_at DESC LIMIT $2`, prefix+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Suggestion
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.InvoiceNo, &s.CustomerName); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Transactional operations

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (invoice_no, customer_name, customer_phone, date, billing_amount, discount, fuel_charge, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		inv.InvoiceNo, inv.CustomerName, inv.CustomerPhone, inv.Date,
		inv.BillingAmount, inv.Discount, inv.FuelCharge, inv.DeliveryStatus).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, err
	}
	if err := loadInvoiceChildren(ctx, r.tx, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepo) UpdateInvoiceHeader(ctx context.Context, inv Invoice) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoices
		SET customer_name=$2, customer_phone=$3, date=$4, billing_amount=$5, discount=$6
		WHERE id=$1`,
		inv.ID, inv.CustomerName, inv.CustomerPhone, inv.Date, inv.BillingAmount, inv.Discount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoices WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) InsertItem(ctx context.Context, invoiceID int64, item InvoiceItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_items (invoice_id, product_code, quantity, rate)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		invoiceID, item.ProductCode, item.Quantity, item.Rate).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateItemQty(ctx context.Context, itemID int64, qty, rate float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoice_items SET quantity=$2, rate=$3 WHERE id=$1`, itemID, qty, rate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM invoice_items WHERE id=$1`, itemID)
	return err
}

func (r *txRepo) InsertPayment(ctx context.Context, invoiceID int64, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, method, date)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		invoiceID, p.Amount, p.Method, p.Date).Scan(&id)
	return id, err
}

func (r *txRepo) InsertExpense(ctx context.Context, invoiceID int64, e Expense) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_expenses (invoice_id, label, amount)
		VALUES ($1, $2, $3) RETURNING id`,
		invoiceID, e.Label, e.Amount).Scan(&id)
	return id, err
}

func (r *txRepo) SetFuelCharge(ctx context.Context, invoiceID int64, amount float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET fuel_charge=$2 WHERE id=$1`, invoiceID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) SetDeliveryStatus(ctx context.Context, invoiceID int64, status DeliveryStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE invoices SET delivery_status=$2 WHERE id=$1`, invoiceID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepo) ApplyProductStockDelta(ctx context.Context, productCode string, delta float64, refID string) error {
	var itemID int64
	var qty float64
	err := r.tx.QueryRow(ctx, `
		SELECT id, qty_on_hand FROM stock_items WHERE code=$1 AND kind='PRODUCT' FOR UPDATE`, productCode).Scan(&itemID, &qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProductNotFound
		}
		return err
	}
	newQty := qty + delta
	if delta < 0 && newQty < 0 {
		return fmt.Errorf("%w: %s has %.2f, need %.2f", ErrInsufficientStock, productCode, qty, -delta)
	}
	if _, err := r.tx.Exec(ctx, `UPDATE stock_items SET qty_on_hand=$2 WHERE id=$1`, itemID, newQty); err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, delta, ref_module, ref_id, note)
		VALUES ($1, $2, 'BILLING', $3, '')`, itemID, delta, refID)
	return err
}

func (r *txRepo) MaxNumericInvoiceNo(ctx context.Context, prefix string) (int64, error) {
	var highest int64
	err := r.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(invoice_no FROM $2) AS BIGINT)), 0)
		FROM invoices WHERE invoice_no ~ $1`,
		"^"+prefix+"[0-9]+$", len(prefix)+1).Scan(&highest)
	return highest, err
}
