package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps queue tables in process. Used by tests and local runs.
type MemoryRepository struct {
	mu     sync.Mutex
	tables map[Table]map[int64]Lead

	// FailFetch, when set, is returned by FetchLeads.
	FailFetch error
	// FailUpdate, when set, is returned by UpdateLead and AppendCallAttempt.
	FailUpdate error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tables: map[Table]map[int64]Lead{}}
}

func (r *MemoryRepository) Put(table Table, leads ...Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[table]
	if !ok {
		t = map[int64]Lead{}
		r.tables[table] = t
	}
	for _, l := range leads {
		t[l.ID] = cloneLead(l)
	}
}

func (r *MemoryRepository) Get(table Table, id int64) (Lead, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.tables[table][id]
	return cloneLead(l), ok
}

func (r *MemoryRepository) FetchLeads(ctx context.Context, q Query) (Page, error) {
	if r.FailFetch != nil {
		return Page{}, r.FailFetch
	}
	if q.PageSize <= 0 {
		q.PageSize = 1000
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[q.Table]
	if !ok {
		return Page{}, ErrInvalidTable
	}

	matched := make([]Lead, 0, len(t))
	for _, l := range t {
		if !q.From.IsZero() && l.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && l.CreatedAt.After(q.To) {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := q.Page * q.PageSize
	if start >= len(matched) {
		return Page{Page: q.Page, Leads: []Lead{}}, nil
	}
	end := start + q.PageSize
	hasMore := end < len(matched)
	if !hasMore {
		end = len(matched)
	}
	out := make([]Lead, 0, end-start)
	for _, l := range matched[start:end] {
		out = append(out, cloneLead(l))
	}
	return Page{Page: q.Page, Leads: out, HasMore: hasMore}, nil
}

func (r *MemoryRepository) FetchLeadForUpdate(ctx context.Context, table Table, id int64) (Lead, error) {
	l, ok := r.Get(table, id)
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepository) UpdateLead(ctx context.Context, table Table, id int64, u Update) error {
	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.tables[table][id]
	if !ok {
		return ErrNotFound
	}
	l.CallHistory = append([]CallAttempt(nil), u.CallHistory...)
	l.CallCount = u.CallCount
	at := u.CalledAt
	l.CalledAt = &at
	r.tables[table][id] = l
	return nil
}

func (r *MemoryRepository) AppendCallAttempt(ctx context.Context, table Table, id int64, attempt CallAttempt, at time.Time) (Lead, error) {
	if r.FailUpdate != nil {
		return Lead{}, r.FailUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.tables[table][id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	updated := AppendAttempt(l, attempt, at)
	r.tables[table][id] = updated
	return cloneLead(updated), nil
}

func cloneLead(l Lead) Lead {
	if l.CallHistory != nil {
		l.CallHistory = append([]CallAttempt(nil), l.CallHistory...)
	}
	return l
}
