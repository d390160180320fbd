package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voip-platform/pkg/utils"
)

// PostgresStore reads and writes the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `
id, email, balance, is_admin,
auto_topup_enabled, auto_topup_threshold, auto_topup_amount,
COALESCE(payment_customer_id, ''), COALESCE(default_payment_method_id, ''),
created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Balance,
		&u.IsAdmin,
		&u.AutoTopup.Enabled,
		&u.AutoTopup.Threshold,
		&u.AutoTopup.ReplenishAmount,
		&u.PaymentCustomerID,
		&u.DefaultPaymentMethodID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (s *PostgresStore) Insert(ctx context.Context, u User) (User, error) {
	const q = `
INSERT INTO users (id, email, balance, is_admin, auto_topup_enabled, auto_topup_threshold, auto_topup_amount, created_at, updated_at)
VALUES ($1, $2, 0, false, false, $3, $4, $5, $5)
ON CONFLICT (id) DO NOTHING
`
	conn := utils.Conn(ctx, s.db)
	if _, err := conn.ExecContext(ctx, q, u.ID, u.Email, u.AutoTopup.Threshold, u.AutoTopup.ReplenishAmount, u.CreatedAt); err != nil {
		return User{}, err
	}
	return s.Get(ctx, u.ID)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = $1 AND is_admin = false RETURNING id`
	var deleted string
	err := utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or protected; tell them apart for the caller.
		u, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if u.IsAdmin {
			return ErrAdminProtected
		}
		return ErrUserNotFound
	}
	return err
}

func (s *PostgresStore) UpdateAutoTopup(ctx context.Context, id string, a AutoTopup, now time.Time) (User, error) {
	q := `
UPDATE users
SET auto_topup_enabled = $2, auto_topup_threshold = $3, auto_topup_amount = $4, updated_at = $5
WHERE id = $1
RETURNING ` + userColumns
	return scanUser(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id, a.Enabled, a.Threshold, a.ReplenishAmount, now))
}

func (s *PostgresStore) SetPaymentMethod(ctx context.Context, id, customerID, paymentMethodID string, now time.Time) error {
	const q = `
UPDATE users
SET payment_customer_id = $2, default_payment_method_id = $3, updated_at = $4
WHERE id = $1
`
	res, err := utils.Conn(ctx, s.db).ExecContext(ctx, q, id, customerID, paymentMethodID, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
