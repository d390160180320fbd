package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voip-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Store persists balances and the ledger. Apply must change the balance and
// append the entry atomically.
type Store interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Apply(ctx context.Context, e Entry) (Entry, error)
	Entries(ctx context.Context, userID string, limit int) ([]Entry, error)
	TotalsBetween(ctx context.Context, from, to time.Time) ([]ReasonTotal, error)
}

// NOTE: This repository assumes the following tables exist:
// - users (balance column, NUMERIC)
// - ledger_entries (immutable append-only)
//
// It also assumes an idempotency constraint:
// UNIQUE (user_id, reason, reference) WHERE reference <> ''
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := utils.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrUserNotFound
	}
	return bal, err
}

// Apply joins the caller's transaction when ctx carries one (call finalize,
// refunds), otherwise it opens its own.
func (s *PostgresStore) Apply(ctx context.Context, e Entry) (Entry, error) {
	var out Entry
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if e.Reference != "" {
			existing, ok, err := findEntryByReference(ctx, tx, e.UserID, e.Reason, e.Reference)
			if err != nil {
				return err
			}
			if ok {
				existing.Replayed = true
				out = existing
				return nil
			}
		}

		bal, err := applyBalanceDelta(ctx, tx, e.UserID, e.Amount, e.CreatedAt)
		if err != nil {
			return err
		}
		e.BalanceAfter = bal
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func (s *PostgresStore) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const q = `
SELECT id, user_id, type, amount, reason, reference, balance_after, created_at
FROM ledger_entries
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`
	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &e.Reason, &e.Reference, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TotalsBetween(ctx context.Context, from, to time.Time) ([]ReasonTotal, error) {
	const q = `
SELECT reason, COUNT(*), COALESCE(SUM(amount), 0)
FROM ledger_entries
WHERE created_at >= $1 AND created_at < $2
GROUP BY reason
ORDER BY reason
`
	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReasonTotal
	for rows.Next() {
		var t ReasonTotal
		if err := rows.Scan(&t.Reason, &t.Count, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID string, delta decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	// Single-statement arithmetic; concurrent postings for one user never lose updates.
	const q = `
UPDATE users
SET balance = balance + $2, updated_at = $3
WHERE id = $1
RETURNING balance
`
	var bal decimal.Decimal
	if err := tx.QueryRowContext(ctx, q, userID, delta, now).Scan(&bal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, err
	}
	return bal, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	const q = `
INSERT INTO ledger_entries (
  id, user_id, type, amount, reason, reference, balance_after, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.Type,
		e.Amount,
		e.Reason,
		e.Reference,
		e.BalanceAfter,
		e.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicatePosting
	}
	return err
}

func findEntryByReference(ctx context.Context, tx *sql.Tx, userID string, reason Reason, reference string) (Entry, bool, error) {
	const q = `
SELECT id, user_id, type, amount, reason, reference, balance_after, created_at
FROM ledger_entries
WHERE user_id = $1 AND reason = $2 AND reference = $3
LIMIT 1
`
	var e Entry
	err := tx.QueryRowContext(ctx, q, userID, reason, reference).Scan(
		&e.ID,
		&e.UserID,
		&e.Type,
		&e.Amount,
		&e.Reason,
		&e.Reference,
		&e.BalanceAfter,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}
