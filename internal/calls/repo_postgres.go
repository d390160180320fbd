package calls

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"voip-platform/pkg/utils"

	"github.com/shopspring/decimal"
)

// PostgresStore reads and writes the calls table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `
id, user_id, from_number, to_number, country_name, country_code,
status, duration_seconds, cost, rate_per_minute, currency,
COALESCE(provider_call_id, ''), COALESCE(recording_url, ''), caller_id_type,
ended_at, refunded_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c        Call
		status   string
		ended    sql.NullTime
		refunded sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.From,
		&c.To,
		&c.CountryName,
		&c.CountryCode,
		&status,
		&c.DurationSeconds,
		&c.Cost,
		&c.RatePerMinute,
		&c.Currency,
		&c.ProviderCallID,
		&c.RecordingURL,
		&c.CallerIDType,
		&ended,
		&refunded,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrCallNotFound
	}
	if err != nil {
		return Call{}, err
	}
	if c.Status, err = ParseStatus(status); err != nil {
		return Call{}, err
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	if refunded.Valid {
		t := refunded.Time
		c.RefundedAt = &t
	}
	return c, nil
}

func scanCalls(rows *sql.Rows) ([]Call, error) {
	defer rows.Close()
	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
  id, user_id, from_number, to_number, country_name, country_code,
  status, duration_seconds, cost, rate_per_minute, currency, caller_id_type,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13
)
`
	_, err := utils.Conn(ctx, s.db).ExecContext(ctx, q,
		c.ID, c.UserID, c.From, c.To, c.CountryName, c.CountryCode,
		c.Status, c.DurationSeconds, c.Cost, c.RatePerMinute, c.Currency, c.CallerIDType,
		c.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetByProviderID(ctx context.Context, providerCallID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return scanCall(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) SetProviderCallID(ctx context.Context, id, providerCallID string, now time.Time) error {
	const q = `UPDATE calls SET provider_call_id = $2, updated_at = $3 WHERE id = $1`
	return execOne(ctx, utils.Conn(ctx, s.db), q, id, providerCallID, now)
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from []Status, to Status, now time.Time) (Call, bool, error) {
	in, args := inList(4, from)
	q := `UPDATE calls SET status = $2, updated_at = $3 WHERE id = $1 AND status IN (` + in + `) RETURNING ` + callColumns
	return s.casReturning(ctx, id, q, append([]any{id, to, now}, args...)...)
}

func (s *PostgresStore) Finalize(ctx context.Context, id string, status Status, durationSeconds int, cost decimal.Decimal, now time.Time) (Call, bool, error) {
	in, args := inList(6, sourcesFor(status))
	q := `
UPDATE calls
SET status = $2, duration_seconds = $3, cost = $4, ended_at = $5, updated_at = $5
WHERE id = $1 AND status IN (` + in + `)
RETURNING ` + callColumns
	return s.casReturning(ctx, id, q, append([]any{id, status, durationSeconds, cost, now}, args...)...)
}

func (s *PostgresStore) MarkRefunded(ctx context.Context, id string, now time.Time) (Call, error) {
	q := `
UPDATE calls
SET status = 'CANCELLED', refunded_at = $2, updated_at = $2
WHERE id = $1 AND status = 'COMPLETED'
RETURNING ` + callColumns
	c, ok, err := s.casReturning(ctx, id, q, id, now)
	if err != nil {
		return Call{}, err
	}
	if !ok {
		return Call{}, ErrNotRefundable
	}
	return c, nil
}

func (s *PostgresStore) SetRecording(ctx context.Context, id, recordingURL string, now time.Time) error {
	const q = `UPDATE calls SET recording_url = $2, updated_at = $3 WHERE id = $1`
	return execOne(ctx, utils.Conn(ctx, s.db), q, id, recordingURL, now)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Call, error) {
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

	q := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanCalls(rows)
}

func (s *PostgresStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls
WHERE status IN ('INITIATED', 'RINGING', 'ANSWERED') AND created_at < $1
ORDER BY created_at
LIMIT $2`
	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanCalls(rows)
}

func (s *PostgresStore) ListBetween(ctx context.Context, from, to time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`
	rows, err := utils.Conn(ctx, s.db).QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	return scanCalls(rows)
}

// casReturning runs a guarded UPDATE ... RETURNING. When no row matched it
// loads the current row so callers can report what the call already is.
func (s *PostgresStore) casReturning(ctx context.Context, id, q string, args ...any) (Call, bool, error) {
	c, err := scanCall(utils.Conn(ctx, s.db).QueryRowContext(ctx, q, args...))
	if errors.Is(err, ErrCallNotFound) {
		cur, getErr := s.Get(ctx, id)
		if getErr != nil {
			return Call{}, false, getErr
		}
		return cur, false, nil
	}
	if err != nil {
		return Call{}, false, err
	}
	return c, true, nil
}

func execOne(ctx context.Context, conn utils.DBTX, q string, args ...any) error {
	res, err := conn.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCallNotFound
	}
	return nil
}

// inList renders "$n, $n+1, ..." for statuses starting at placeholder n.
func inList(n int, statuses []Status) (string, []any) {
	ph := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		ph[i] = "$" + strconv.Itoa(n+i)
		args[i] = st
	}
	return strings.Join(ph, ", "), args
}
