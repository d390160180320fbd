package audit

import (
	"context"
	"database/sql"

	"voip-platform/pkg/utils"
)

// PostgresRepo writes audit_events. The table is INSERT-only; a trigger
// rejects UPDATE and DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, action, actor_id, actor_role, ip_address, target_type, target_id, user_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE(NULLIF($10, '')::jsonb, '{}'::jsonb),$11
)
`
	_, err := utils.Conn(ctx, r.db).ExecContext(ctx, q,
		e.ID, e.Action, e.ActorID, e.ActorRole, e.IPAddress,
		e.TargetType, e.TargetID, e.UserID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, limit, offset int) ([]Event, error) {
	const q = `
SELECT id, action, actor_id, actor_role, ip_address, target_type, target_id, user_id, message, metadata::text, created_at
FROM audit_events
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2
`
	rows, err := utils.Conn(ctx, r.db).QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.ActorRole, &e.IPAddress,
			&e.TargetType, &e.TargetID, &e.UserID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
