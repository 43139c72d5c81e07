package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains account balances and their entry ledgers.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// EntryInput carries the metadata of one in/out movement.
type EntryInput struct {
	Amount      float64
	Remark      string
	ProjectID   int64
	Category    string
	ReferenceID string
	SubmittedBy int64
	Date        time.Time
}

func (in *EntryInput) normalize() error {
	if in.Amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}
	if in.ReferenceID == "" {
		in.ReferenceID = newReferenceID()
	}
	return nil
}

func newReferenceID() string {
	return "PAY-" + uuid.NewString()
}

// CreateAccount opens a named account with an initial balance.
func (s *Service) CreateAccount(ctx context.Context, name string, initialBalance float64, actorID int64) (Account, error) {
	if name == "" {
		return Account{}, fmt.Errorf("account name required: %w", ErrValidation)
	}
	account := Account{Name: name, Balance: initialBalance}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateAccount(ctx, account)
		if err != nil {
			return err
		}
		account.ID = id
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.recordAudit(ctx, actorID, "ACCOUNT_CREATE", name, map[string]any{"initial": initialBalance})
	return account, nil
}

// RecordIn credits the account and appends an IN entry.
func (s *Service) RecordIn(ctx context.Context, accountID int64, input EntryInput) (Entry, error) {
	if err := input.normalize(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = applyEntry(ctx, tx, accountID, DirectionIn, input)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, input.SubmittedBy, "PAYMENT_IN", entry.ReferenceID, map[string]any{"account": accountID, "amount": input.Amount})
	return entry, nil
}

// RecordOut debits the account and appends an OUT entry. The locked
// balance must cover the amount.
func (s *Service) RecordOut(ctx context.Context, accountID int64, input EntryInput) (Entry, error) {
	if err := input.normalize(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = applyEntry(ctx, tx, accountID, DirectionOut, input)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, input.SubmittedBy, "PAYMENT_OUT", entry.ReferenceID, map[string]any{"account": accountID, "amount": input.Amount})
	return entry, nil
}

// applyEntry adjusts the locked balance and writes the ledger row inside
// the caller's transaction.
func applyEntry(ctx context.Context, tx TxRepository, accountID int64, direction Direction, input EntryInput) (Entry, error) {
	account, err := tx.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return Entry{}, err
	}
	balance := account.Balance
	if direction == DirectionIn {
		balance += input.Amount
	} else {
		if account.Balance < input.Amount {
			return Entry{}, fmt.Errorf("%w: %s holds %.2f, need %.2f",
				ErrInsufficientFunds, account.Name, account.Balance, input.Amount)
		}
		balance -= input.Amount
	}
	if err := tx.SetBalance(ctx, accountID, balance); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		AccountID:   accountID,
		Direction:   direction,
		Amount:      input.Amount,
		Remark:      input.Remark,
		ProjectID:   input.ProjectID,
		Category:    input.Category,
		ReferenceID: input.ReferenceID,
		SubmittedBy: input.SubmittedBy,
		Date:        input.Date,
	}
	entry.ID, err = tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// TransferInput describes a movement between two accounts.
type TransferInput struct {
	FromAccountID int64
	ToAccountID   int64
	Amount        float64
	Remark        string
	SubmittedBy   int64
	Date          time.Time
}

// TransferResult carries both legs of a completed transfer.
type TransferResult struct {
	Out Entry `json:"out"`
	In  Entry `json:"in"`
}

// Transfer debits one account and credits another as a single atomic
// unit. Each leg carries its own generated reference id. Accounts are
// locked in id order so two opposite transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.Amount <= 0 {
		return TransferResult{}, fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	if input.FromAccountID == input.ToAccountID {
		return TransferResult{}, fmt.Errorf("cannot transfer within one account: %w", ErrValidation)
	}
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}

	var result TransferResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lockOrder := []int64{input.FromAccountID, input.ToAccountID}
		if lockOrder[1] < lockOrder[0] {
			lockOrder[0], lockOrder[1] = lockOrder[1], lockOrder[0]
		}
		for _, id := range lockOrder {
			if _, err := tx.GetAccountForUpdate(ctx, id); err != nil {
				return err
			}
		}
		out, err := applyEntry(ctx, tx, input.FromAccountID, DirectionOut, EntryInput{
			Amount:      input.Amount,
			Remark:      input.Remark,
			ReferenceID: newReferenceID(),
			SubmittedBy: input.SubmittedBy,
			Date:        input.Date,
		})
		if err != nil {
			return err
		}
		in, err := applyEntry(ctx, tx, input.ToAccountID, DirectionIn, EntryInput{
			Amount:      input.Amount,
			Remark:      input.Remark,
			ReferenceID: newReferenceID(),
			SubmittedBy: input.SubmittedBy,
			Date:        input.Date,
		})
		if err != nil {
			return err
		}
		result = TransferResult{Out: out, In: in}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.recordAudit(ctx, input.SubmittedBy, "PAYMENT_TRANSFER", result.Out.ReferenceID, map[string]any{
		"from": input.FromAccountID, "to": input.ToAccountID, "amount": input.Amount,
	})
	return result, nil
}

// GetBalance returns the account's current balance.
func (s *Service) GetBalance(ctx context.Context, accountID int64) (float64, error) {
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// GetAccount returns one account.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	return s.repo.GetAccount(ctx, accountID)
}

// ListAccounts returns every account.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// ListEntries returns an account's movements, newest first.
func (s *Service) ListEntries(ctx context.Context, accountID int64, direction Direction, limit int) ([]Entry, error) {
	if direction != "" && direction != DirectionIn && direction != DirectionOut {
		return nil, fmt.Errorf("unknown direction %q: %w", direction, ErrValidation)
	}
	return s.repo.ListEntries(ctx, accountID, direction, limit)
}

// ListProjectEntries returns the project's transaction feed across all
// accounts, newest first.
func (s *Service) ListProjectEntries(ctx context.Context, projectID int64, limit int) ([]Entry, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("project required: %w", ErrValidation)
	}
	return s.repo.ListProjectEntries(ctx, projectID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payments",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
