package billing

import (
	"fmt"
	"time"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// DeliveryStatus tracks the fulfilment of an invoice.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "Pending"
	DeliveryDelivered DeliveryStatus = "Delivered"
)

// InvoiceNumberPrefix is the business prefix of generated invoice numbers.
const InvoiceNumberPrefix = "KK"

// Invoice is a customer bill. Its line items are the single source of
// truth for the product stock it holds: the stock deltas applied over the
// invoice's lifetime always equal the negative of its current quantities.
type Invoice struct {
	ID             int64          `json:"id"`
	InvoiceNo      string         `json:"invoiceNo"`
	CustomerName   string         `json:"customerName"`
	CustomerPhone  string         `json:"customerPhone,omitempty"`
	Date           time.Time      `json:"date"`
	BillingAmount  float64        `json:"billingAmount"`
	Discount       float64        `json:"discount"`
	FuelCharge     float64        `json:"fuelCharge"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus"`
	Items          []InvoiceItem  `json:"items"`
	Payments       []Payment      `json:"payments"`
	Expenses       []Expense      `json:"expenses"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// InvoiceItem is one billed product line.
type InvoiceItem struct {
	ID          int64   `json:"id"`
	ProductCode string  `json:"productCode"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
}

// Payment is one received payment against the invoice.
type Payment struct {
	ID     int64     `json:"id"`
	Amount float64   `json:"amount"`
	Method string    `json:"method"`
	Date   time.Time `json:"date"`
}

// Expense is one cost booked against the invoice, no stock interaction.
type Expense struct {
	ID     int64   `json:"id"`
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

var (
	// ErrInvoiceNotFound indicates the invoice is absent.
	ErrInvoiceNotFound = fmt.Errorf("billing: invoice %w", shared.ErrNotFound)
	// ErrProductNotFound indicates the billed product is absent.
	ErrProductNotFound = fmt.Errorf("billing: product %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("billing: %w", shared.ErrValidation)
	// ErrInsufficientStock indicates a deduction would drive product
	// stock below zero.
	ErrInsufficientStock = fmt.Errorf("billing: %w", shared.ErrInsufficientStock)
	// ErrDuplicateNumber indicates the invoice number is already taken.
	ErrDuplicateNumber = fmt.Errorf("billing: invoice number taken: %w", shared.ErrConflict)
)
