package callerid

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voip-platform/pkg/utils"
)

// PostgresStore reads and writes the caller_ids table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callerIDColumns = `
id, user_id, phone_number, country, status, COALESCE(code, ''), code_expires_at,
attempts, is_active, verified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCallerID(row rowScanner) (CallerID, error) {
	var (
		c        CallerID
		status   string
		expires  sql.NullTime
		verified sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.PhoneNumber,
		&c.Country,
		&status,
		&c.Code,
		&expires,
		&c.Attempts,
		&c.IsActive,
		&verified,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CallerID{}, ErrNotFound
	}
	if err != nil {
		return CallerID{}, err
	}
	if c.Status, err = ParseStatus(status); err != nil {
		return CallerID{}, err
	}
	if expires.Valid {
		t := expires.Time
		c.CodeExpiresAt = &t
	}
	if verified.Valid {
		t := verified.Time
		c.VerifiedAt = &t
	}
	return c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c CallerID) error {
	const q = `
INSERT INTO caller_ids (
  id, user_id, phone_number, country, status, code, code_expires_at,
  attempts, is_active, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10
)
`
	_, err := utils.Conn(ctx, s.db).ExecContext(ctx, q,
		c.ID, c.UserID, c.PhoneNumber, c.Country, c.Status, c.Code, c.CodeExpiresAt,
		c.Attempts, c.IsActive, c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (CallerID, error) {
	q := `SELECT ` + callerIDColumns + ` FROM caller_ids WHERE id = $1 AND user_id = $2`
	return scanCallerID(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id, userID))
}

func (s *PostgresStore) FindVerified(ctx context.Context, userID, phone string) (CallerID, error) {
	q := `SELECT ` + callerIDColumns + ` FROM caller_ids
WHERE user_id = $1 AND phone_number = $2 AND status = 'VERIFIED'
LIMIT 1`
	return scanCallerID(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, userID, phone))
}

func (s *PostgresStore) DeleteUnverified(ctx context.Context, userID, phone string) (int, error) {
	const q = `DELETE FROM caller_ids WHERE user_id = $1 AND phone_number = $2 AND status <> 'VERIFIED'`
	res, err := utils.Conn(ctx, s.db).ExecContext(ctx, q, userID, phone)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, id string, status Status, now time.Time) (CallerID, error) {
	q := `
UPDATE caller_ids
SET attempts = attempts + 1, status = $2, updated_at = $3
WHERE id = $1
RETURNING ` + callerIDColumns
	return scanCallerID(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id, status, now))
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status, now time.Time) (CallerID, error) {
	q := `UPDATE caller_ids SET status = $2, updated_at = $3 WHERE id = $1 RETURNING ` + callerIDColumns
	return scanCallerID(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id, status, now))
}

func (s *PostgresStore) MarkVerified(ctx context.Context, id string, now time.Time) (CallerID, error) {
	q := `
UPDATE caller_ids
SET status = 'VERIFIED', code = NULL, code_expires_at = NULL, is_active = true,
    verified_at = $2, updated_at = $2
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + callerIDColumns
	c, err := scanCallerID(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id, now))
	if errors.Is(err, ErrNotFound) {
		// Lost a race with a concurrent submission.
		return CallerID{}, ErrAlreadyVerified
	}
	return c, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]CallerID, error) {
	q := `SELECT ` + callerIDColumns + ` FROM caller_ids WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallerID
	for rows.Next() {
		c, err := scanCallerID(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	res, err := utils.Conn(ctx, s.db).ExecContext(ctx, `DELETE FROM caller_ids WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
