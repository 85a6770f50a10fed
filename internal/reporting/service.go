package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lead-recovery/internal/daterange"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/recovery"
	"lead-recovery/pkg/logger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

type Options struct {
	// Location is the business calendar. Defaults to UTC.
	Location *time.Location
	PageSize int
	// MaxRows caps full fetches used for aggregation. 0 means no cap.
	MaxRows int
}

// Service fetches leads and turns them into dashboard views.
// It holds no paging state; every call is a complete request/response.
type Service struct {
	repo    leads.Repository
	catalog leads.Catalog
	loc     *time.Location
	clock   func() time.Time

	pageSize int
	maxRows  int
}

func NewService(repo leads.Repository, catalog leads.Catalog, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		loc:      loc,
		clock:    time.Now,
		pageSize: pageSize,
		maxRows:  opts.MaxRows,
	}
}

// Now returns the current instant in the business calendar.
func (s *Service) Now() time.Time { return s.clock().In(s.loc) }

// Location is the business calendar.
func (s *Service) Location() *time.Location { return s.loc }

// ResolveTable validates a caller-supplied queue name.
func (s *Service) ResolveTable(name string) (leads.Table, error) {
	t, err := s.catalog.Resolve(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return t, nil
}

// ParseFilter resolves a dashboard date selection against the current day.
func (s *Service) ParseFilter(option, start, end string) (daterange.Filter, error) {
	f, err := daterange.Parse(option, start, end, s.Now())
	if err != nil {
		return daterange.Filter{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return f, nil
}

func (s *Service) Dashboard(ctx context.Context, req DashboardRequest) (Dashboard, error) {
	if s.repo == nil {
		return Dashboard{}, errors.New("reporting: repository not configured")
	}
	table, err := s.ResolveTable(req.Table)
	if err != nil {
		return Dashboard{}, err
	}
	filter, err := s.ParseFilter(req.Option, req.Start, req.End)
	if err != nil {
		return Dashboard{}, err
	}

	rows, err := s.Leads(ctx, table, filter)
	if err != nil {
		return Dashboard{}, err
	}

	now := s.Now()
	kpi, series := Aggregate(rows, filter, now)
	logger.From(ctx).Debug("dashboard aggregated",
		"table", string(table),
		"option", string(filter.Option),
		"leads", len(rows),
		"days", len(series.Funnel),
	)
	return Dashboard{
		Table:       table,
		Filter:      filter,
		GeneratedAt: now,
		KPIs:        kpi,
		Series:      series,
	}, nil
}

// Leads fetches every lead of table inside filter, up to the configured row cap.
func (s *Service) Leads(ctx context.Context, table leads.Table, filter daterange.Filter) ([]leads.Lead, error) {
	q := leads.Query{Table: table, PageSize: s.pageSize}
	if from, to, ok := filter.Bounds(); ok {
		q.From, q.To = from, to
	}
	return leads.FetchAll(ctx, s.repo, q, s.maxRows)
}

func (s *Service) ListLeads(ctx context.Context, req ListRequest) (LeadPage, error) {
	if s.repo == nil {
		return LeadPage{}, errors.New("reporting: repository not configured")
	}
	if req.Page < 0 || req.PageSize < 0 {
		return LeadPage{}, ErrInvalidRequest
	}
	table, err := s.ResolveTable(req.Table)
	if err != nil {
		return LeadPage{}, err
	}
	filter, err := s.ParseFilter(req.Option, req.Start, req.End)
	if err != nil {
		return LeadPage{}, err
	}

	pageSize := req.PageSize
	if pageSize == 0 || pageSize > s.pageSize {
		pageSize = s.pageSize
	}
	q := leads.Query{Table: table, Page: req.Page, PageSize: pageSize}
	if from, to, ok := filter.Bounds(); ok {
		q.From, q.To = from, to
	}

	p, err := s.repo.FetchLeads(ctx, q)
	if err != nil {
		if errors.Is(err, leads.ErrFetch) {
			return LeadPage{}, err
		}
		return LeadPage{}, fmt.Errorf("%w: %w", leads.ErrFetch, err)
	}

	now := s.Now()
	out := LeadPage{Table: table, Filter: filter, Page: p.Page, HasMore: p.HasMore, Rows: make([]LeadRow, 0, len(p.Leads))}
	for _, l := range p.Leads {
		n, cost := recovery.AttemptsAndCost(l)
		out.Rows = append(out.Rows, LeadRow{
			Lead:      l,
			Status:    recovery.Classify(l, now),
			Attempts:  n,
			TotalCost: cost,
		})
	}
	return out, nil
}
