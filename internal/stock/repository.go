package stock

import (
	"context"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateItem(ctx context.Context, item Item) (Item, error)
	GetItem(ctx context.Context, code string) (Item, error)
	ListItems(ctx context.Context, kind ItemKind, search string) ([]Item, error)
	ListMovements(ctx context.Context, code string, limit int) ([]Movement, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, code string) (Item, error)
	SetItemQty(ctx context.Context, itemID int64, qty float64) error
	InsertMovement(ctx context.Context, m Movement) error
}
