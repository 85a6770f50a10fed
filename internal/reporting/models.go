package reporting

import (
	"time"

	"lead-recovery/internal/daterange"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/recovery"
)

// MaxSeriesDays caps the chart window; longer ranges keep the most recent days.
const MaxSeriesDays = 365

// KPISnapshot counts every lead in scope, including ones whose day bucket
// falls outside the series window. Waiting holds only called leads still
// waiting on a purchase; leads never called are counted in Pending.
type KPISnapshot struct {
	Total    int `json:"total"`
	Answered int `json:"answered"`

	RecoveredBefore  int `json:"recovered_before"`
	RecoveredSameDay int `json:"recovered_same_day"`
	RecoveredLater   int `json:"recovered_later"`
	// Returned is the sum of the three recovered buckets.
	Returned int `json:"returned"`

	NotRecovered int `json:"not_recovered"`
	Waiting      int `json:"waiting"`
	Pending      int `json:"pending"`

	TotalCost float64 `json:"total_cost"`
}

// FunnelDay counts leads by the day they entered the queue.
type FunnelDay struct {
	Date  string `json:"date"`
	Label string `json:"label"`

	Total            int `json:"total"`
	Answered         int `json:"answered"`
	RecoveredBefore  int `json:"recovered_before"`
	RecoveredSameDay int `json:"recovered_same_day"`
	RecoveredLater   int `json:"recovered_later"`
	Waiting          int `json:"waiting"`
	NotRecovered     int `json:"not_recovered"`
	Pending          int `json:"pending"`
}

// CallDay counts individual call attempts by the day they were made.
type CallDay struct {
	Date  string `json:"date"`
	Label string `json:"label"`

	Answered int `json:"answered"`
	NoAnswer int `json:"no_answer"`
	Busy     int `json:"busy"`
	Failed   int `json:"failed"`
}

// DailySeries holds two parallel series over the same contiguous days, oldest first.
type DailySeries struct {
	Funnel []FunnelDay `json:"funnel"`
	Calls  []CallDay   `json:"calls"`
}

type DashboardRequest struct {
	Table  string
	Option string
	Start  string
	End    string
}

type Dashboard struct {
	Table       leads.Table      `json:"table"`
	Filter      daterange.Filter `json:"filter"`
	GeneratedAt time.Time        `json:"generated_at"`
	KPIs        KPISnapshot      `json:"kpis"`
	Series      DailySeries      `json:"series"`
}

type ListRequest struct {
	Table    string
	Option   string
	Start    string
	End      string
	Page     int
	PageSize int
}

// LeadRow is a lead with its derived columns for the table view.
type LeadRow struct {
	leads.Lead
	Status    recovery.Status `json:"status"`
	Attempts  int             `json:"attempts"`
	TotalCost float64         `json:"total_cost"`
}

type LeadPage struct {
	Table   leads.Table      `json:"table"`
	Filter  daterange.Filter `json:"filter"`
	Page    int              `json:"page"`
	HasMore bool             `json:"has_more"`
	Rows    []LeadRow        `json:"rows"`
}
