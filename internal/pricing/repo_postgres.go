package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voip-platform/pkg/utils"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const rateColumns = `id, country_code, caller_id_country, country_name, rate_per_minute, currency, active, COALESCE(flag, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRate(row rowScanner) (Rate, error) {
	var r Rate
	err := row.Scan(
		&r.ID,
		&r.CountryCode,
		&r.CallerIDCountry,
		&r.CountryName,
		&r.RatePerMinute,
		&r.Currency,
		&r.Active,
		&r.Flag,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	return r, err
}

func (p *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]Rate, error) {
	rows, err := utils.Conn(ctx, p.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) ListActive(ctx context.Context, callerIDCountry string) ([]Rate, error) {
	q := `
SELECT ` + rateColumns + `
FROM call_rates
WHERE active = true AND ($1 = '' OR caller_id_country = $1)
ORDER BY country_name, caller_id_country
`
	return p.query(ctx, q, callerIDCountry)
}

func (p *PostgresRepo) List(ctx context.Context) ([]Rate, error) {
	q := `SELECT ` + rateColumns + ` FROM call_rates ORDER BY country_name, caller_id_country`
	return p.query(ctx, q)
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (Rate, error) {
	q := `SELECT ` + rateColumns + ` FROM call_rates WHERE id = $1`
	return scanRate(utils.Conn(ctx, p.db).QueryRowContext(ctx, q, id))
}

func (p *PostgresRepo) SetActive(ctx context.Context, id string, active bool, now time.Time) (Rate, error) {
	q := `UPDATE call_rates SET active = $2, updated_at = $3 WHERE id = $1 RETURNING ` + rateColumns
	return scanRate(utils.Conn(ctx, p.db).QueryRowContext(ctx, q, id, active, now))
}
