package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"lead-recovery/pkg/utils"
)

// NOTE: every queue table is assumed to share this shape:
//
//	id BIGINT PRIMARY KEY, passport BIGINT, name TEXT, whatsapp TEXT,
//	time_played BIGINT NULL, last_login_at_ingestion TIMESTAMPTZ,
//	current_last_login TIMESTAMPTZ NULL, called_at TIMESTAMPTZ NULL,
//	is_recovered BOOLEAN, created_at TIMESTAMPTZ,
//	call_count INT NULL, call_history JSONB NULL
//
// An index on created_at keeps the paged, newest-first listing cheap.

const leadColumns = `id, passport, name, whatsapp, time_played, last_login_at_ingestion,
  current_last_login, called_at, is_recovered, created_at, call_count, call_history`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresRepository reads and writes lead queue tables through database/sql (pgx driver).
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func quoteTable(t Table) (string, error) {
	if t == "" {
		return "", ErrInvalidTable
	}
	return pgx.Identifier{string(t)}.Sanitize(), nil
}

func (r *PostgresRepository) FetchLeads(ctx context.Context, q Query) (Page, error) {
	table, err := quoteTable(q.Table)
	if err != nil {
		return Page{}, err
	}
	if q.PageSize <= 0 {
		q.PageSize = 1000
	}
	if q.Page < 0 {
		q.Page = 0
	}

	var (
		where []string
		args  []any
	)
	if !q.From.IsZero() {
		args = append(args, q.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s\nFROM %s\n", leadColumns, table)
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}
	// One extra row tells us whether another page exists.
	args = append(args, q.PageSize+1, q.Page*q.PageSize)
	fmt.Fprintf(&b, "ORDER BY created_at DESC, id DESC\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer rows.Close()

	out := Page{Page: q.Page, Leads: make([]Lead, 0, q.PageSize)}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return Page{}, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		out.Leads = append(out.Leads, l)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if len(out.Leads) > q.PageSize {
		out.Leads = out.Leads[:q.PageSize]
		out.HasMore = true
	}
	return out, nil
}

func (r *PostgresRepository) FetchLeadForUpdate(ctx context.Context, table Table, id int64) (Lead, error) {
	return fetchLead(ctx, r.db, table, id, false)
}

func fetchLead(ctx context.Context, q queryer, table Table, id int64, lock bool) (Lead, error) {
	name, err := quoteTable(table)
	if err != nil {
		return Lead{}, err
	}
	query := fmt.Sprintf("SELECT %s\nFROM %s\nWHERE id = $1", leadColumns, name)
	if lock {
		query += "\nFOR UPDATE"
	}
	l, err := scanLead(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (r *PostgresRepository) UpdateLead(ctx context.Context, table Table, id int64, u Update) error {
	return updateLead(ctx, r.db, table, id, u)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateLead(ctx context.Context, e execer, table Table, id int64, u Update) error {
	name, err := quoteTable(table)
	if err != nil {
		return err
	}
	history, err := json.Marshal(historyOrEmpty(u.CallHistory))
	if err != nil {
		return fmt.Errorf("encode call history: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s
SET call_history = $1, call_count = $2, called_at = $3
WHERE id = $4`, name)

	res, err := e.ExecContext(ctx, query, history, u.CallCount, u.CalledAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendCallAttempt locks the row so concurrent campaigns touching the same
// lead serialize instead of overwriting each other's history.
func (r *PostgresRepository) AppendCallAttempt(ctx context.Context, table Table, id int64, attempt CallAttempt, at time.Time) (Lead, error) {
	var updated Lead
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		current, err := fetchLead(ctx, tx, table, id, true)
		if err != nil {
			return err
		}
		updated = AppendAttempt(current, attempt, at)
		return updateLead(ctx, tx, table, id, Update{
			CallHistory: updated.CallHistory,
			CallCount:   updated.CallCount,
			CalledAt:    *updated.CalledAt,
		})
	})
	if err != nil {
		return Lead{}, err
	}
	return updated, nil
}

func historyOrEmpty(h []CallAttempt) []CallAttempt {
	if h == nil {
		return []CallAttempt{}
	}
	return h
}

func scanLead(s rowScanner) (Lead, error) {
	var (
		l          Lead
		name       sql.NullString
		phone      sql.NullString
		timePlayed sql.NullInt64
		lastLogin  sql.NullTime
		current    sql.NullTime
		calledAt   sql.NullTime
		recovered  sql.NullBool
		callCount  sql.NullInt64
		history    []byte
	)
	if err := s.Scan(
		&l.ID,
		&l.Passport,
		&name,
		&phone,
		&timePlayed,
		&lastLogin,
		&current,
		&calledAt,
		&recovered,
		&l.CreatedAt,
		&callCount,
		&history,
	); err != nil {
		return Lead{}, err
	}

	l.Name = name.String
	l.Phone = phone.String
	if timePlayed.Valid {
		v := timePlayed.Int64
		l.TimePlayed = &v
	}
	if lastLogin.Valid {
		l.LastLoginAtIngestion = lastLogin.Time
	}
	if current.Valid {
		v := current.Time
		l.CurrentLastLogin = &v
	}
	if calledAt.Valid {
		v := calledAt.Time
		l.CalledAt = &v
	}
	l.IsRecovered = recovered.Valid && recovered.Bool

	if len(history) > 0 && string(history) != "null" {
		if err := json.Unmarshal(history, &l.CallHistory); err != nil {
			return Lead{}, fmt.Errorf("lead %d: decode call history: %w", l.ID, err)
		}
	}
	l.CallCount = int(callCount.Int64)
	if !callCount.Valid {
		l.CallCount = len(l.CallHistory)
	}
	return l, nil
}
