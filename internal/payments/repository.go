package payments

import "context"

// RepositoryPort describes read operations used outside transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	ListEntries(ctx context.Context, accountID int64, direction Direction, limit int) ([]Entry, error)
	ListProjectEntries(ctx context.Context, projectID int64, limit int) ([]Entry, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateAccount(ctx context.Context, account Account) (int64, error)
	// GetAccountForUpdate locks the account row so concurrent balance
	// adjustments serialise.
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	SetBalance(ctx context.Context, accountID int64, balance float64) error
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}
