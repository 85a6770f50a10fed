package leads

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seed(n int) *MemoryRepository {
	repo := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		repo.Put(TableD2, Lead{ID: int64(i), CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	return repo
}

func TestFetchAll_WalksPages(t *testing.T) {
	repo := seed(5)
	got, err := FetchAll(context.Background(), repo, Query{Table: TableD2, PageSize: 2}, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 leads, got %d", len(got))
	}
	if got[0].ID != 5 || got[4].ID != 1 {
		t.Fatalf("expected newest first, got %d..%d", got[0].ID, got[4].ID)
	}
}

func TestFetchAll_StopsAtRowCap(t *testing.T) {
	repo := seed(5)
	got, err := FetchAll(context.Background(), repo, Query{Table: TableD2, PageSize: 2}, 3)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(got))
	}
}

func TestFetchAll_WrapsFetchError(t *testing.T) {
	repo := seed(1)
	repo.FailFetch = errors.New("db down")
	_, err := FetchAll(context.Background(), repo, Query{Table: TableD2}, 0)
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestMemoryRepository_DateFilter(t *testing.T) {
	repo := seed(5)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := repo.FetchLeads(context.Background(), Query{
		Table: TableD2,
		From:  base.Add(2 * time.Hour),
		To:    base.Add(4 * time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(p.Leads) != 3 || p.HasMore {
		t.Fatalf("expected 3 leads in window, got %d hasMore=%v", len(p.Leads), p.HasMore)
	}
}

func TestMemoryRepository_AppendRoundTrip(t *testing.T) {
	repo := seed(1)
	ctx := context.Background()
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := repo.AppendCallAttempt(ctx, TableD2, 1, CallAttempt{Status: "busy"}, at); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	l, err := repo.FetchLeadForUpdate(ctx, TableD2, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if l.CallCount != len(l.CallHistory) || l.CallCount != 3 {
		t.Fatalf("count %d history %d", l.CallCount, len(l.CallHistory))
	}
	if l.CallHistory[2].CallNumber != 3 {
		t.Fatalf("expected last call number 3, got %d", l.CallHistory[2].CallNumber)
	}
}

func TestCatalog_Resolve(t *testing.T) {
	c, err := NewCatalog([]string{"CALL_LEADS_D1", "CALL_LEADS_D2"}, "CALL_LEADS_D2")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if got, _ := c.Resolve(""); got != TableD2 {
		t.Fatalf("expected default table, got %q", got)
	}
	if got, err := c.Resolve("CALL_LEADS_D1"); err != nil || got != TableD1 {
		t.Fatalf("expected D1, got %q %v", got, err)
	}
	if _, err := c.Resolve(`users"; DROP TABLE x; --`); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("expected ErrInvalidTable, got %v", err)
	}
	if _, err := NewCatalog([]string{"A"}, "B"); err == nil {
		t.Fatalf("expected error for default outside list")
	}
}
