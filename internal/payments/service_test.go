package payments

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mason-erp/mason-erp/internal/shared"
)

type memoryPayRepo struct {
	accounts map[int64]*Account
	entries  []Entry
	nextID   int64
}

type memoryPayTx struct {
	repo *memoryPayRepo
}

func newMemoryPayRepo() *memoryPayRepo {
	return &memoryPayRepo{accounts: make(map[int64]*Account)}
}

func (r *memoryPayRepo) snapshot() *memoryPayRepo {
	copied := newMemoryPayRepo()
	copied.nextID = r.nextID
	copied.entries = append([]Entry(nil), r.entries...)
	for id, account := range r.accounts {
		clone := *account
		copied.accounts[id] = &clone
	}
	return copied
}

// WithTx mirrors transactional semantics: on error the whole mutation is
// rolled back to the pre-transaction snapshot.
func (r *memoryPayRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	if err := fn(ctx, &memoryPayTx{repo: r}); err != nil {
		r.accounts = before.accounts
		r.entries = before.entries
		r.nextID = before.nextID
		return err
	}
	return nil
}

func (r *memoryPayRepo) GetAccount(ctx context.Context, id int64) (Account, error) {
	account, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *account, nil
}

func (r *memoryPayRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, account := range r.accounts {
		out = append(out, *account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryPayRepo) ListEntries(ctx context.Context, accountID int64, direction Direction, limit int) ([]Entry, error) {
	var out []Entry
	for _, entry := range r.entries {
		if entry.AccountID != accountID {
			continue
		}
		if direction != "" && entry.Direction != direction {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *memoryPayRepo) ListProjectEntries(ctx context.Context, projectID int64, limit int) ([]Entry, error) {
	var out []Entry
	for _, entry := range r.entries {
		if entry.ProjectID == projectID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (tx *memoryPayTx) CreateAccount(ctx context.Context, account Account) (int64, error) {
	for _, existing := range tx.repo.accounts {
		if existing.Name == account.Name {
			return 0, ErrDuplicateAccount
		}
	}
	tx.repo.nextID++
	account.ID = tx.repo.nextID
	account.CreatedAt = time.Now()
	tx.repo.accounts[account.ID] = &account
	return account.ID, nil
}

func (tx *memoryPayTx) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	return tx.repo.GetAccount(ctx, id)
}

func (tx *memoryPayTx) SetBalance(ctx context.Context, accountID int64, balance float64) error {
	account, ok := tx.repo.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance = balance
	return nil
}

func (tx *memoryPayTx) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	entry.CreatedAt = time.Now()
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry.ID, nil
}

func newPayService() (*Service, *memoryPayRepo) {
	repo := newMemoryPayRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, nil, logger), repo
}

func mustAccount(t *testing.T, svc *Service, name string, balance float64) Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), name, balance, 1)
	require.NoError(t, err)
	return account
}

func TestRecordInAndOut(t *testing.T) {
	svc, _ := newPayService()
	ctx := context.Background()
	account := mustAccount(t, svc, "site cash", 100)

	_, err := svc.RecordIn(ctx, account.ID, EntryInput{Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordOut(ctx, account.ID, EntryInput{Amount: -5})
	require.ErrorIs(t, err, shared.ErrValidation)

	in, err := svc.RecordIn(ctx, account.ID, EntryInput{Amount: 40, Remark: "advance"})
	require.NoError(t, err)
	require.NotEmpty(t, in.ReferenceID)

	out, err := svc.RecordOut(ctx, account.ID, EntryInput{Amount: 25, Remark: "diesel"})
	require.NoError(t, err)
	require.NotEmpty(t, out.ReferenceID)

	balance, err := svc.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 115.0, balance)

	_, err = svc.RecordOut(ctx, account.ID, EntryInput{Amount: 1000})
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)
	balance, err = svc.GetBalance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 115.0, balance)
}

func TestTransferAtomicity(t *testing.T) {
	svc, repo := newPayService()
	ctx := context.Background()
	from := mustAccount(t, svc, "operations", 200)
	to := mustAccount(t, svc, "site cash", 30)

	result, err := svc.Transfer(ctx, TransferInput{
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        50,
		Remark:        "weekly float",
	})
	require.NoError(t, err)

	fromBalance, err := svc.GetBalance(ctx, from.ID)
	require.NoError(t, err)
	require.Equal(t, 150.0, fromBalance)
	toBalance, err := svc.GetBalance(ctx, to.ID)
	require.NoError(t, err)
	require.Equal(t, 80.0, toBalance)

	outs, err := repo.ListEntries(ctx, from.ID, DirectionOut, 0)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	ins, err := repo.ListEntries(ctx, to.ID, DirectionIn, 0)
	require.NoError(t, err)
	require.Len(t, ins, 1)
	require.Equal(t, outs[0].Amount, ins[0].Amount)
	require.NotEqual(t, result.Out.ReferenceID, result.In.ReferenceID)
}

func TestTransferRollsBackOnInsufficientFunds(t *testing.T) {
	svc, repo := newPayService()
	ctx := context.Background()
	from := mustAccount(t, svc, "operations", 20)
	to := mustAccount(t, svc, "site cash", 30)

	_, err := svc.Transfer(ctx, TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: 50})
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)

	fromBalance, _ := svc.GetBalance(ctx, from.ID)
	toBalance, _ := svc.GetBalance(ctx, to.ID)
	require.Equal(t, 20.0, fromBalance)
	require.Equal(t, 30.0, toBalance)
	entries, err := repo.ListEntries(ctx, from.ID, "", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTransferValidation(t *testing.T) {
	svc, _ := newPayService()
	ctx := context.Background()
	account := mustAccount(t, svc, "operations", 100)

	_, err := svc.Transfer(ctx, TransferInput{FromAccountID: account.ID, ToAccountID: account.ID, Amount: 10})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Transfer(ctx, TransferInput{FromAccountID: account.ID, ToAccountID: 999, Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Transfer(ctx, TransferInput{FromAccountID: account.ID, ToAccountID: 999, Amount: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestProjectEntryFeed(t *testing.T) {
	svc, _ := newPayService()
	ctx := context.Background()
	account := mustAccount(t, svc, "operations", 1000)

	_, err := svc.RecordOut(ctx, account.ID, EntryInput{Amount: 200, ProjectID: 7, Category: "Fuel"})
	require.NoError(t, err)
	_, err = svc.RecordOut(ctx, account.ID, EntryInput{Amount: 150, ProjectID: 7, Category: "Wages"})
	require.NoError(t, err)
	_, err = svc.RecordOut(ctx, account.ID, EntryInput{Amount: 50, ProjectID: 8})
	require.NoError(t, err)
	_, err = svc.RecordIn(ctx, account.ID, EntryInput{Amount: 40})
	require.NoError(t, err)

	feed, err := svc.ListProjectEntries(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	categories := []string{feed[0].Category, feed[1].Category}
	require.ElementsMatch(t, []string{"Fuel", "Wages"}, categories)

	_, err = svc.ListProjectEntries(ctx, 0, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDuplicateAccountName(t *testing.T) {
	svc, _ := newPayService()
	mustAccount(t, svc, "operations", 0)
	_, err := svc.CreateAccount(context.Background(), "operations", 0, 1)
	require.ErrorIs(t, err, shared.ErrConflict)
}
