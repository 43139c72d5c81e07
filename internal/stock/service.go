package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns quantity-on-hand for every stock item and applies signed
// deltas atomically.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// DeltaInput describes one signed stock adjustment.
type DeltaInput struct {
	Code      string
	Delta     float64
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
}

// CreateItemInput describes item creation.
type CreateItemInput struct {
	Code         string
	Name         string
	Kind         ItemKind
	PurchaseUnit string
	SalesUnit    string
}

// CreateItem registers a new stock item.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.Code == "" || input.Name == "" {
		return Item{}, fmt.Errorf("stock: code and name %w", shared.ErrValidation)
	}
	if input.Kind != KindProduct && input.Kind != KindMaterial {
		return Item{}, fmt.Errorf("stock: kind %w", shared.ErrValidation)
	}
	item, err := s.repo.CreateItem(ctx, Item{
		Code:         input.Code,
		Name:         input.Name,
		Kind:         input.Kind,
		PurchaseUnit: input.PurchaseUnit,
		SalesUnit:    input.SalesUnit,
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.Code, "STOCK_ITEM_CREATE", 0, map[string]any{"name": input.Name, "kind": input.Kind})
	return item, nil
}

// ApplyDelta atomically adds delta to the item's quantity-on-hand.
// Deductions are re-validated against the locked row, so the quantity
// never goes below zero even when the caller's earlier check raced.
func (s *Service) ApplyDelta(ctx context.Context, input DeltaInput) (Item, error) {
	if input.Delta == 0 {
		return Item{}, ErrInvalidQuantity
	}
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, input.Code)
		if err != nil {
			return err
		}
		newQty := item.QtyOnHand + input.Delta
		if input.Delta < 0 && newQty < 0 {
			return fmt.Errorf("%w: %s has %.2f, need %.2f", ErrInsufficientStock, item.Code, item.QtyOnHand, -input.Delta)
		}
		if err := tx.SetItemQty(ctx, item.ID, newQty); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, Movement{
			ItemID:    item.ID,
			Delta:     input.Delta,
			RefModule: input.RefModule,
			RefID:     input.RefID,
			Note:      input.Note,
		}); err != nil {
			return err
		}
		item.QtyOnHand = newQty
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.Code, "STOCK_DELTA", input.ActorID, map[string]any{"delta": input.Delta, "ref": input.RefID})
	return updated, nil
}

// ReverseDelta applies the delta with its sign flipped, used when an
// invoice line is removed or reduced.
func (s *Service) ReverseDelta(ctx context.Context, input DeltaInput) (Item, error) {
	input.Delta = -input.Delta
	return s.ApplyDelta(ctx, input)
}

// GetAvailable returns the current quantity-on-hand for an item.
func (s *Service) GetAvailable(ctx context.Context, code string) (float64, error) {
	item, err := s.repo.GetItem(ctx, code)
	if err != nil {
		return 0, err
	}
	return item.QtyOnHand, nil
}

// GetItem fetches one item.
func (s *Service) GetItem(ctx context.Context, code string) (Item, error) {
	return s.repo.GetItem(ctx, code)
}

// ListItems lists items with optional kind filter and search term.
func (s *Service) ListItems(ctx context.Context, kind ItemKind, search string) ([]Item, error) {
	return s.repo.ListItems(ctx, kind, search)
}

// ListMovements returns recent signed deltas for one item.
func (s *Service) ListMovements(ctx context.Context, code string, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, code, limit)
}

func (s *Service) recordAudit(ctx context.Context, code, action string, actorID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_item",
		EntityID: code,
		Meta:     meta,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
