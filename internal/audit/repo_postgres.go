package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to audit_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor, actor_role, ip_address, batch_id, table_name, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.Actor,
		e.ActorRole,
		e.IPAddress,
		e.BatchID,
		e.Table,
		e.Message,
		nullableJSON(e.Metadata),
		e.CreatedAt,
	)
	return err
}

func nullableJSON(s string) any {
	if s == "" {
		return nil
	}
	return s
}
