package billing

import "context"

// RepositoryPort describes read operations used outside transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetByNumber(ctx context.Context, invoiceNo string) (Invoice, error)
	ListInvoices(ctx context.Context, search string, limit int) ([]Invoice, error)
	// TotalQuantitySold sums the quantity of one product across the line
	// items of every invoice currently on record.
	TotalQuantitySold(ctx context.Context, productCode string) (float64, error)
	Suggestions(ctx context.Context, prefix string, limit int) ([]Suggestion, error)
}

// Suggestion is a lightweight lookup row for invoice pickers.
type Suggestion struct {
	InvoiceNo    string `json:"invoiceNo"`
	CustomerName string `json:"customerName"`
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	// InsertInvoice persists the header; a taken invoice number surfaces
	// as ErrDuplicateNumber so the caller can regenerate.
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceHeader(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id int64) error

	InsertItem(ctx context.Context, invoiceID int64, item InvoiceItem) (int64, error)
	UpdateItemQty(ctx context.Context, itemID int64, qty, rate float64) error
	DeleteItem(ctx context.Context, itemID int64) error

	InsertPayment(ctx context.Context, invoiceID int64, p Payment) (int64, error)
	InsertExpense(ctx context.Context, invoiceID int64, e Expense) (int64, error)
	SetFuelCharge(ctx context.Context, invoiceID int64, amount float64) error
	SetDeliveryStatus(ctx context.Context, invoiceID int64, status DeliveryStatus) error

	// ApplyProductStockDelta locks the product row, re-validates that a
	// deduction cannot drive the quantity negative, applies the delta and
	// records a stock movement, all inside the caller's transaction.
	ApplyProductStockDelta(ctx context.Context, productCode string, delta float64, refID string) error
	// MaxNumericInvoiceNo scans existing numbers matching prefix<digits>
	// and returns the highest numeric suffix, 0 when none exist.
	MaxNumericInvoiceNo(ctx context.Context, prefix string) (int64, error)
}
