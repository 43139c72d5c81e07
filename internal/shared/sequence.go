package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceStore hands out unique business identifiers backed by a
// per-name persistent counter. Increment and read happen in a single
// statement, so concurrent callers never observe the same value.
type SequenceStore struct {
	pool *pgxpool.Pool
}

// NewSequenceStore constructs the store.
func NewSequenceStore(pool *pgxpool.Pool) *SequenceStore {
	return &SequenceStore{pool: pool}
}

// Next returns the next counter value for name, creating it at 1.
func (s *SequenceStore) Next(ctx context.Context, name string) (int64, error) {
	if s == nil {
		return 0, errors.New("sequence store not initialised")
	}
	if name == "" {
		return 0, errors.New("sequence name required")
	}
	var value int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("sequence next %q: %w", name, err)
	}
	return value, nil
}

// NextID returns the next formatted identifier for prefix, e.g. REQ007.
func (s *SequenceStore) NextID(ctx context.Context, prefix string) (string, error) {
	n, err := s.Next(ctx, prefix)
	if err != nil {
		return "", err
	}
	return FormatID(prefix, n), nil
}

// FormatID renders a business identifier with at least three digits.
func FormatID(prefix string, n int64) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
