// Package daterange resolves the named date windows used to filter leads.
package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Option string

const (
	Today     Option = "today"
	Yesterday Option = "yesterday"
	Last7     Option = "last7"
	Last30    Option = "last30"
	ThisMonth Option = "thisMonth"
	Lifetime  Option = "lifetime"
	Custom    Option = "custom"
)

var (
	ErrInvalidRange  = errors.New("daterange: start must not be after end")
	ErrUnknownOption = errors.New("daterange: unknown option")
	ErrMissingBound  = errors.New("daterange: custom range needs start and end")
)

// DateLayout is the wire and bucket-key format for calendar days.
const DateLayout = "2006-01-02"

// Filter is a named window with its resolved calendar days.
// Both dates nil means unbounded (lifetime). Dates carry the location
// the filter was resolved in and sit at midnight.
type Filter struct {
	Option    Option     `json:"option"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Resolve computes the window for a named option relative to now.
// Custom cannot be resolved from a name alone; use NewCustom.
func Resolve(opt Option, now time.Time) (Filter, error) {
	today := StartOfDay(now)
	switch opt {
	case Today:
		return bounded(opt, today, today), nil
	case Yesterday:
		y := today.AddDate(0, 0, -1)
		return bounded(opt, y, y), nil
	case Last7:
		return bounded(opt, today.AddDate(0, 0, -6), today), nil
	case Last30:
		return bounded(opt, today.AddDate(0, 0, -29), today), nil
	case ThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return bounded(opt, first, first.AddDate(0, 1, -1)), nil
	case Lifetime:
		return Filter{Option: Lifetime}, nil
	case Custom:
		return Filter{}, ErrMissingBound
	default:
		return Filter{}, fmt.Errorf("%w: %q", ErrUnknownOption, opt)
	}
}

// NewCustom builds a custom window. start must not be after end.
func NewCustom(start, end time.Time) (Filter, error) {
	s, e := StartOfDay(start), StartOfDay(end)
	if s.After(e) {
		return Filter{}, ErrInvalidRange
	}
	return bounded(Custom, s, e), nil
}

// Parse reads an option and optional yyyy-MM-dd bounds as sent by the dashboard.
// Empty option means lifetime. Dates are interpreted in now's location.
func Parse(option, start, end string, now time.Time) (Filter, error) {
	opt := Option(strings.TrimSpace(option))
	if opt == "" {
		opt = Lifetime
	}
	if opt != Custom {
		return Resolve(opt, now)
	}
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return Filter{}, ErrMissingBound
	}
	s, err := time.ParseInLocation(DateLayout, strings.TrimSpace(start), now.Location())
	if err != nil {
		return Filter{}, fmt.Errorf("daterange: start: %w", err)
	}
	e, err := time.ParseInLocation(DateLayout, strings.TrimSpace(end), now.Location())
	if err != nil {
		return Filter{}, fmt.Errorf("daterange: end: %w", err)
	}
	return NewCustom(s, e)
}

func bounded(opt Option, start, end time.Time) Filter {
	return Filter{Option: opt, StartDate: &start, EndDate: &end}
}

// Bounded reports whether the filter restricts dates at all.
func (f Filter) Bounded() bool {
	return f.StartDate != nil && f.EndDate != nil
}

// Bounds returns the inclusive instant range [start 00:00, end 23:59:59.999999999].
// ok is false for an unbounded filter.
func (f Filter) Bounds() (from, to time.Time, ok bool) {
	if !f.Bounded() {
		return time.Time{}, time.Time{}, false
	}
	from = StartOfDay(*f.StartDate)
	to = StartOfDay(*f.EndDate).AddDate(0, 0, 1).Add(-time.Nanosecond)
	return from, to, true
}

// StartOfDay truncates t to local midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
