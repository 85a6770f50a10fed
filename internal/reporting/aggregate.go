package reporting

import (
	"time"

	"lead-recovery/internal/calls"
	"lead-recovery/internal/daterange"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/recovery"
)

const (
	labelLayout      = "02/01"
	lifetimeFallback = 30
)

// Aggregate folds leads into global KPIs and per-day series.
//
// Days are calendar days in now's location. The output depends only on the
// arguments: equal inputs give equal results.
func Aggregate(in []leads.Lead, filter daterange.Filter, now time.Time) (KPISnapshot, DailySeries) {
	loc := now.Location()

	statuses := make([]recovery.Status, len(in))
	answered := make([]bool, len(in))

	var kpi KPISnapshot
	for i, l := range in {
		statuses[i] = recovery.Classify(l, now)
		answered[i] = hasAnswered(l)

		kpi.Total++
		if answered[i] {
			kpi.Answered++
		}
		switch statuses[i] {
		case recovery.StatusRecoveredBefore:
			kpi.RecoveredBefore++
		case recovery.StatusRecoveredSameDay:
			kpi.RecoveredSameDay++
		case recovery.StatusRecoveredLater:
			kpi.RecoveredLater++
		case recovery.StatusNotRecovered:
			kpi.NotRecovered++
		case recovery.StatusWaiting:
			kpi.Waiting++
		case recovery.StatusPending:
			kpi.Pending++
		}
		if statuses[i].IsRecovered() {
			kpi.Returned++
		}
		_, cost := recovery.AttemptsAndCost(l)
		kpi.TotalCost += cost
	}

	days := seriesDays(in, filter, now)
	series := DailySeries{
		Funnel: make([]FunnelDay, len(days)),
		Calls:  make([]CallDay, len(days)),
	}
	index := make(map[string]int, len(days))
	for i, d := range days {
		key := d.Format(daterange.DateLayout)
		label := d.Format(labelLayout)
		index[key] = i
		series.Funnel[i] = FunnelDay{Date: key, Label: label}
		series.Calls[i] = CallDay{Date: key, Label: label}
	}

	for i, l := range in {
		if idx, ok := index[dayKey(l.CreatedAt, loc)]; ok {
			addFunnel(&series.Funnel[idx], statuses[i], answered[i])
		}

		for _, a := range l.CallHistory {
			at := a.Date
			if at == nil {
				at = l.CalledAt
			}
			if at == nil {
				continue
			}
			if idx, ok := index[dayKey(*at, loc)]; ok {
				addCall(&series.Calls[idx], a.Status)
			}
		}
	}
	return kpi, series
}

func hasAnswered(l leads.Lead) bool {
	for _, a := range l.CallHistory {
		if calls.IsAnswered(a.Status) {
			return true
		}
	}
	return false
}

func addFunnel(d *FunnelDay, s recovery.Status, answered bool) {
	d.Total++
	if answered {
		d.Answered++
	}
	switch s {
	case recovery.StatusRecoveredBefore:
		d.RecoveredBefore++
	case recovery.StatusRecoveredSameDay:
		d.RecoveredSameDay++
	case recovery.StatusRecoveredLater:
		d.RecoveredLater++
	case recovery.StatusNotRecovered:
		d.NotRecovered++
	case recovery.StatusWaiting:
		d.Waiting++
	case recovery.StatusPending:
		d.Pending++
	}
}

func addCall(d *CallDay, status string) {
	switch calls.Bucket(status) {
	case calls.OutcomeAnswered:
		d.Answered++
	case calls.OutcomeNoAnswer:
		d.NoAnswer++
	case calls.OutcomeBusy:
		d.Busy++
	default:
		d.Failed++
	}
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(daterange.DateLayout)
}

// seriesDays lists the midnights of every day in the chart window.
func seriesDays(in []leads.Lead, filter daterange.Filter, now time.Time) []time.Time {
	loc := now.Location()
	today := daterange.StartOfDay(now)

	var start, end time.Time
	if filter.Bounded() {
		start = daterange.StartOfDay(filter.StartDate.In(loc))
		end = daterange.StartOfDay(filter.EndDate.In(loc))
	} else {
		end = today
		start = today.AddDate(0, 0, -lifetimeFallback)
		if oldest, ok := oldestCreated(in); ok {
			start = daterange.StartOfDay(oldest.In(loc))
		}
	}
	if start.After(end) {
		start = end
	}
	if n := recovery.DaysBetween(end, start) + 1; n > MaxSeriesDays {
		start = end.AddDate(0, 0, -(MaxSeriesDays - 1))
	}

	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func oldestCreated(in []leads.Lead) (time.Time, bool) {
	var (
		oldest time.Time
		found  bool
	)
	for _, l := range in {
		if l.CreatedAt.IsZero() {
			continue
		}
		if !found || l.CreatedAt.Before(oldest) {
			oldest = l.CreatedAt
			found = true
		}
	}
	return oldest, found
}
