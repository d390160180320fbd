package payments

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"voip-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore reads and writes the payments table.
// provider_session_id is UNIQUE where not null.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `
id, user_id, amount, currency, status, kind,
COALESCE(provider_session_id, ''), COALESCE(provider_payment_id, ''), COALESCE(checkout_url, ''),
created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p         Payment
		status    string
		completed sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Amount,
		&p.Currency,
		&status,
		&p.Kind,
		&p.ProviderSessionID,
		&p.ProviderPaymentID,
		&p.CheckoutURL,
		&p.CreatedAt,
		&p.UpdatedAt,
		&completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	if p.Status, err = ParseStatus(status); err != nil {
		return Payment{}, err
	}
	if completed.Valid {
		t := completed.Time
		p.CompletedAt = &t
	}
	return p, nil
}

func (s *PostgresStore) Insert(ctx context.Context, p Payment) error {
	const q = `
INSERT INTO payments (id, user_id, amount, currency, status, kind, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
`
	_, err := utils.Conn(ctx, s.db).ExecContext(ctx, q, p.ID, p.UserID, p.Amount, p.Currency, p.Status, p.Kind, p.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetBySession(ctx context.Context, sessionID string) (Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_session_id = $1`
	return scanPayment(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, sessionID))
}

func (s *PostgresStore) SetSession(ctx context.Context, id, sessionID, checkoutURL string, now time.Time) error {
	const q = `UPDATE payments SET provider_session_id = $2, checkout_url = $3, updated_at = $4 WHERE id = $1`
	res, err := utils.Conn(ctx, s.db).ExecContext(ctx, q, id, sessionID, checkoutURL, now)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.New("provider session already bound to another payment")
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status, providerPaymentID string, now time.Time) (Payment, bool, error) {
	q := `
UPDATE payments
SET status = $3,
    provider_payment_id = COALESCE(NULLIF($4, ''), provider_payment_id),
    completed_at = CASE WHEN $3 = 'COMPLETED' THEN $5 ELSE completed_at END,
    updated_at = $5
WHERE id = $1 AND status = $2
RETURNING ` + paymentColumns
	conn := utils.Conn(ctx, s.db)
	p, err := scanPayment(conn.QueryRowContext(ctx, q, id, from, to, providerPaymentID, now))
	if errors.Is(err, ErrPaymentNotFound) {
		// Lost the race or the row is gone; return the current row.
		cur, getErr := s.Get(ctx, id)
		if getErr != nil {
			return Payment{}, false, getErr
		}
		return cur, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Payment, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, "user_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}

	q := `SELECT ` + paymentColumns + ` FROM payments`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
