package leads

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("leads: not found")
	ErrInvalidTable = errors.New("leads: invalid table")
	// ErrFetch marks a failed read; callers abort the page or batch on it.
	ErrFetch = errors.New("leads: fetch failed")
)

// Table names a lead queue. Only names returned by a Catalog reach SQL.
type Table string

const (
	// TableD1 holds leads queued one day after their last login.
	TableD1 Table = "CALL_LEADS_D1"
	// TableD2 holds leads queued two days after their last login.
	TableD2 Table = "CALL_LEADS_D2"
)

// Catalog is the allow-list of queue tables this deployment may touch.
type Catalog struct {
	tables       map[string]Table
	defaultTable Table
}

func NewCatalog(names []string, defaultName string) (Catalog, error) {
	c := Catalog{tables: make(map[string]Table, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		c.tables[n] = Table(n)
	}
	if len(c.tables) == 0 {
		return Catalog{}, fmt.Errorf("%w: no tables configured", ErrInvalidTable)
	}
	t, ok := c.tables[defaultName]
	if !ok {
		return Catalog{}, fmt.Errorf("%w: default %q not in allow-list", ErrInvalidTable, defaultName)
	}
	c.defaultTable = t
	return c, nil
}

// Resolve maps a caller-supplied name onto an allowed table. Empty means default.
func (c Catalog) Resolve(name string) (Table, error) {
	if name == "" {
		return c.defaultTable, nil
	}
	t, ok := c.tables[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return t, nil
}

func (c Catalog) Default() Table { return c.defaultTable }

// Query selects one page of a queue, newest first.
// Zero From/To means no bound on that side.
type Query struct {
	Table    Table
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Page is the stateless result of one fetch.
type Page struct {
	Leads   []Lead
	Page    int
	HasMore bool
}

// Update is the partial write applied after a call attempt.
type Update struct {
	CallHistory []CallAttempt
	CallCount   int
	CalledAt    time.Time
}

// Repository is the lead store contract used by reporting and campaigns.
type Repository interface {
	FetchLeads(ctx context.Context, q Query) (Page, error)
	FetchLeadForUpdate(ctx context.Context, table Table, id int64) (Lead, error)
	UpdateLead(ctx context.Context, table Table, id int64, u Update) error

	// AppendCallAttempt reads the lead, appends attempt stamped at, and writes
	// history, count and called_at back as one unit. Returns the updated lead.
	AppendCallAttempt(ctx context.Context, table Table, id int64, attempt CallAttempt, at time.Time) (Lead, error)
}

// FetchAll walks pages until the store reports no more rows or maxRows is reached.
// maxRows <= 0 means no cap. Any read failure is wrapped in ErrFetch.
func FetchAll(ctx context.Context, repo Repository, q Query, maxRows int) ([]Lead, error) {
	if q.PageSize <= 0 {
		q.PageSize = 1000
	}
	q.Page = 0

	var out []Lead
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		p, err := repo.FetchLeads(ctx, q)
		if err != nil {
			if errors.Is(err, ErrFetch) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		out = append(out, p.Leads...)
		if maxRows > 0 && len(out) >= maxRows {
			return out[:maxRows], nil
		}
		if !p.HasMore {
			return out, nil
		}
		q.Page++
	}
}
