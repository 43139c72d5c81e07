package stock

import (
	"fmt"
	"time"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// ItemKind separates the two stock namespaces.
type ItemKind string

const (
	// KindProduct is the billing namespace (sold goods).
	KindProduct ItemKind = "PRODUCT"
	// KindMaterial is the project-materials namespace.
	KindMaterial ItemKind = "MATERIAL"
)

// Item models a stock item with its current quantity-on-hand.
// QtyOnHand is the sum of all applied deltas since creation.
type Item struct {
	ID           int64
	Code         string
	Name         string
	Kind         ItemKind
	PurchaseUnit string
	SalesUnit    string
	QtyOnHand    float64
	CreatedAt    time.Time
}

// Movement records one signed delta applied to an item.
type Movement struct {
	ID        int64
	ItemID    int64
	Delta     float64
	RefModule string
	RefID     string
	Note      string
	CreatedAt time.Time
}

var (
	// ErrItemNotFound indicates the stock item is absent.
	ErrItemNotFound = fmt.Errorf("stock: item %w", shared.ErrNotFound)
	// ErrInsufficientStock indicates a deduction would drive quantity below zero.
	ErrInsufficientStock = fmt.Errorf("stock: %w", shared.ErrInsufficientStock)
	// ErrInvalidQuantity indicates a zero or malformed delta.
	ErrInvalidQuantity = fmt.Errorf("stock: quantity %w", shared.ErrValidation)
	// ErrDuplicateItem indicates the item code is already taken.
	ErrDuplicateItem = fmt.Errorf("stock: item code %w", shared.ErrConflict)
)
