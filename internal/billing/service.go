package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// SequencePort hands out invoice number suffixes.
type SequencePort interface {
	Next(ctx context.Context, name string) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// numberRetries bounds regeneration after an invoice number collision.
const numberRetries = 3

// Service owns invoice lifecycle and the product stock it moves.
type Service struct {
	repo   RepositoryPort
	seq    SequencePort
	audit  AuditPort
	logger *slog.Logger
	// compat additionally scans existing KK<digits> numbers and never
	// issues one below the observed maximum, matching the legacy
	// numbering scheme during migration.
	compat bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, seq SequencePort, audit AuditPort, logger *slog.Logger, compat bool) *Service {
	return &Service{repo: repo, seq: seq, audit: audit, logger: logger, compat: compat}
}

// ItemInput is one billed product line.
type ItemInput struct {
	ProductCode string
	Quantity    float64
	Rate        float64
}

// PaymentInput is one payment received with the invoice.
type PaymentInput struct {
	Amount float64
	Method string
	Date   time.Time
}

// CreateInvoiceInput describes a new invoice.
type CreateInvoiceInput struct {
	InvoiceNo     string
	CustomerName  string
	CustomerPhone string
	Date          time.Time
	BillingAmount float64
	Discount      float64
	Items         []ItemInput
	Payment       *PaymentInput
	ActorID       int64
}

func (s *Service) validateCreate(input CreateInvoiceInput) error {
	if input.CustomerName == "" {
		return fmt.Errorf("customer name required: %w", ErrValidation)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("at least one line required: %w", ErrValidation)
	}
	if input.BillingAmount <= 0 {
		return fmt.Errorf("billing amount must be positive: %w", ErrValidation)
	}
	if input.Discount < 0 || input.Discount > input.BillingAmount {
		return fmt.Errorf("discount must be between 0 and the billing amount: %w", ErrValidation)
	}
	for _, line := range input.Items {
		if line.ProductCode == "" || line.Quantity <= 0 {
			return fmt.Errorf("every line needs a product and a positive quantity: %w", ErrValidation)
		}
	}
	if input.Payment != nil {
		if input.Payment.Amount <= 0 {
			return fmt.Errorf("payment amount must be positive: %w", ErrValidation)
		}
		if input.Payment.Amount > input.BillingAmount-input.Discount {
			return fmt.Errorf("payment exceeds the amount due: %w", ErrValidation)
		}
	}
	return nil
}

func (s *Service) nextNumber(ctx context.Context, tx TxRepository) (string, error) {
	n, err := s.seq.Next(ctx, InvoiceNumberPrefix)
	if err != nil {
		return "", err
	}
	if s.compat {
		highest, err := tx.MaxNumericInvoiceNo(ctx, InvoiceNumberPrefix)
		if err != nil {
			return "", err
		}
		if highest >= n {
			n = highest + 1
		}
	}
	return shared.FormatID(InvoiceNumberPrefix, n), nil
}

// CreateInvoice validates the bill, deducts every line's quantity from
// product stock and persists the invoice as one atomic unit. A taken
// invoice number is not an error: the next generated number is assigned
// silently, bounded to a few attempts.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if err := s.validateCreate(input); err != nil {
		return Invoice{}, err
	}
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}

	var created Invoice
	requested := input.InvoiceNo
	for attempt := 0; attempt <= numberRetries; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number := requested
			if number == "" {
				var err error
				number, err = s.nextNumber(ctx, tx)
				if err != nil {
					return err
				}
			}
			inv := Invoice{
				InvoiceNo:      number,
				CustomerName:   input.CustomerName,
				CustomerPhone:  input.CustomerPhone,
				Date:           input.Date,
				BillingAmount:  input.BillingAmount,
				Discount:       input.Discount,
				DeliveryStatus: DeliveryPending,
			}
			id, err := tx.InsertInvoice(ctx, inv)
			if err != nil {
				return err
			}
			inv.ID = id
			for _, line := range input.Items {
				if err := tx.ApplyProductStockDelta(ctx, line.ProductCode, -line.Quantity, number); err != nil {
					return err
				}
				item := InvoiceItem{ProductCode: line.ProductCode, Quantity: line.Quantity, Rate: line.Rate}
				item.ID, err = tx.InsertItem(ctx, id, item)
				if err != nil {
					return err
				}
				inv.Items = append(inv.Items, item)
			}
			if input.Payment != nil {
				p := Payment{Amount: input.Payment.Amount, Method: input.Payment.Method, Date: input.Payment.Date}
				if p.Date.IsZero() {
					p.Date = input.Date
				}
				p.ID, err = tx.InsertPayment(ctx, id, p)
				if err != nil {
					return err
				}
				inv.Payments = append(inv.Payments, p)
			}
			created = inv
			return nil
		})
		if errors.Is(err, ErrDuplicateNumber) {
			// Reassign rather than fail, the legacy numbering quirk.
			s.logger.InfoContext(ctx, "invoice number collision, reassigning",
				slog.String("invoiceNo", requested), slog.Int("attempt", attempt+1))
			requested = ""
			continue
		}
		if err != nil {
			return Invoice{}, err
		}
		s.recordAudit(ctx, input.ActorID, "INVOICE_CREATE", created.InvoiceNo, map[string]any{"lines": len(created.Items)})
		return created, nil
	}
	return Invoice{}, fmt.Errorf("invoice number generation exhausted retries: %w", shared.ErrConflict)
}

// EditInvoiceInput replaces an invoice's header fields and line items.
type EditInvoiceInput struct {
	CustomerName  string
	CustomerPhone string
	Date          time.Time
	BillingAmount float64
	Discount      float64
	Items         []ItemInput
	Payment       *PaymentInput
	ActorID       int64
}

// EditInvoice applies the per-line quantity difference to product stock:
// grown lines deduct more, shrunk lines restock, removed lines restock in
// full and new lines deduct in full. Everything commits or nothing does.
func (s *Service) EditInvoice(ctx context.Context, id int64, input EditInvoiceInput) (Invoice, error) {
	if input.CustomerName == "" {
		return Invoice{}, fmt.Errorf("customer name required: %w", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Invoice{}, fmt.Errorf("at least one line required: %w", ErrValidation)
	}
	if input.BillingAmount <= 0 {
		return Invoice{}, fmt.Errorf("billing amount must be positive: %w", ErrValidation)
	}
	if input.Discount < 0 || input.Discount > input.BillingAmount {
		return Invoice{}, fmt.Errorf("discount must be between 0 and the billing amount: %w", ErrValidation)
	}
	for _, line := range input.Items {
		if line.ProductCode == "" || line.Quantity <= 0 {
			return Invoice{}, fmt.Errorf("every line needs a product and a positive quantity: %w", ErrValidation)
		}
	}
	if input.Payment != nil {
		if input.Payment.Amount <= 0 {
			return Invoice{}, fmt.Errorf("payment amount must be positive: %w", ErrValidation)
		}
		if input.Payment.Amount > input.BillingAmount-input.Discount {
			return Invoice{}, fmt.Errorf("payment exceeds the amount due: %w", ErrValidation)
		}
	}

	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous := make(map[string]InvoiceItem, len(inv.Items))
		for _, item := range inv.Items {
			previous[item.ProductCode] = item
		}

		var kept []InvoiceItem
		seen := make(map[string]bool, len(input.Items))
		for _, line := range input.Items {
			if seen[line.ProductCode] {
				return fmt.Errorf("product %s listed twice: %w", line.ProductCode, ErrValidation)
			}
			seen[line.ProductCode] = true

			old, existed := previous[line.ProductCode]
			delta := line.Quantity
			if existed {
				delta = line.Quantity - old.Quantity
			}
			if delta != 0 {
				if err := tx.ApplyProductStockDelta(ctx, line.ProductCode, -delta, inv.InvoiceNo); err != nil {
					return err
				}
			}
			if existed {
				if err := tx.UpdateItemQty(ctx, old.ID, line.Quantity, line.Rate); err != nil {
					return err
				}
				old.Quantity = line.Quantity
				old.Rate = line.Rate
				kept = append(kept, old)
			} else {
				item := InvoiceItem{ProductCode: line.ProductCode, Quantity: line.Quantity, Rate: line.Rate}
				item.ID, err = tx.InsertItem(ctx, inv.ID, item)
				if err != nil {
					return err
				}
				kept = append(kept, item)
			}
		}
		for code, old := range previous {
			if seen[code] {
				continue
			}
			// Removed lines give their whole quantity back.
			if err := tx.ApplyProductStockDelta(ctx, code, old.Quantity, inv.InvoiceNo); err != nil {
				return err
			}
			if err := tx.DeleteItem(ctx, old.ID); err != nil {
				return err
			}
		}

		inv.CustomerName = input.CustomerName
		inv.CustomerPhone = input.CustomerPhone
		if !input.Date.IsZero() {
			inv.Date = input.Date
		}
		inv.BillingAmount = input.BillingAmount
		inv.Discount = input.Discount
		inv.Items = kept
		if err := tx.UpdateInvoiceHeader(ctx, inv); err != nil {
			return err
		}
		if input.Payment != nil {
			p := Payment{Amount: input.Payment.Amount, Method: input.Payment.Method, Date: input.Payment.Date}
			if p.Date.IsZero() {
				p.Date = time.Now().UTC()
			}
			p.ID, err = tx.InsertPayment(ctx, inv.ID, p)
			if err != nil {
				return err
			}
			inv.Payments = append(inv.Payments, p)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, input.ActorID, "INVOICE_EDIT", updated.InvoiceNo, map[string]any{"lines": len(updated.Items)})
	return updated, nil
}

// DeleteInvoice restocks every line and removes the invoice. Restocked
// quantity is clamped at zero so a corrupt negative line can never pull
// stock down during a delete.
func (s *Service) DeleteInvoice(ctx context.Context, id int64, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		number = inv.InvoiceNo
		for _, item := range inv.Items {
			restock := item.Quantity
			if restock < 0 {
				restock = 0
			}
			if restock == 0 {
				continue
			}
			if err := tx.ApplyProductStockDelta(ctx, item.ProductCode, restock, inv.InvoiceNo); err != nil {
				return err
			}
		}
		return tx.DeleteInvoice(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "INVOICE_DELETE", number, nil)
	return nil
}

// ExpenseInput is one candidate expense entry.
type ExpenseInput struct {
	Label  string
	Amount float64
}

// AddExpenses books the fuel charge and the valid expense entries against
// the invoice. Entries without a positive amount are dropped, not failed;
// the legacy system behaved this way and callers rely on it.
func (s *Service) AddExpenses(ctx context.Context, id int64, fuelCharge float64, entries []ExpenseInput, actorID int64) (Invoice, error) {
	if fuelCharge < 0 {
		return Invoice{}, fmt.Errorf("fuel charge cannot be negative: %w", ErrValidation)
	}
	var updated Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if fuelCharge > 0 {
			inv.FuelCharge += fuelCharge
			if err := tx.SetFuelCharge(ctx, inv.ID, inv.FuelCharge); err != nil {
				return err
			}
		}
		for _, entry := range entries {
			if entry.Amount <= 0 {
				s.logger.WarnContext(ctx, "expense entry dropped",
					slog.String("label", entry.Label), slog.Float64("amount", entry.Amount))
				continue
			}
			e := Expense{Label: entry.Label, Amount: entry.Amount}
			e.ID, err = tx.InsertExpense(ctx, inv.ID, e)
			if err != nil {
				return err
			}
			inv.Expenses = append(inv.Expenses, e)
		}
		updated = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "INVOICE_EXPENSES", updated.InvoiceNo, map[string]any{"fuel": fuelCharge})
	return updated, nil
}

// UpdateDeliveryStatus marks the invoice delivered or pending.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id int64, status DeliveryStatus, actorID int64) error {
	if status != DeliveryPending && status != DeliveryDelivered {
		return fmt.Errorf("unknown delivery status %q: %w", status, ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetDeliveryStatus(ctx, id, status)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "INVOICE_DELIVERY", fmt.Sprintf("%d", id), map[string]any{"status": status})
	return nil
}

// GetInvoice returns one invoice by row id.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// GetByNumber returns one invoice by business number.
func (s *Service) GetByNumber(ctx context.Context, invoiceNo string) (Invoice, error) {
	return s.repo.GetByNumber(ctx, invoiceNo)
}

// ListInvoices returns invoices, optionally filtered.
func (s *Service) ListInvoices(ctx context.Context, search string, limit int) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, search, limit)
}

// TotalQuantitySold sums one product's billed quantity across invoices.
func (s *Service) TotalQuantitySold(ctx context.Context, productCode string) (float64, error) {
	return s.repo.TotalQuantitySold(ctx, productCode)
}

// Suggestions returns invoice lookup suggestions for a prefix.
func (s *Service) Suggestions(ctx context.Context, prefix string, limit int) ([]Suggestion, error) {
	return s.repo.Suggestions(ctx, prefix, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "billing",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
