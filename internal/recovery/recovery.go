// Package recovery classifies leads by what happened after they were called.
//
// Both functions are pure. The calendar used for day comparisons is the
// location of the now argument: callers pass now in the business time zone
// and every timestamp is converted into it before comparing days.
package recovery

import (
	"time"

	"lead-recovery/internal/leads"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusWaiting          Status = "waiting"
	StatusNotRecovered     Status = "not_recovered"
	StatusRecoveredBefore  Status = "recovered_before"
	StatusRecoveredSameDay Status = "recovered_same_day"
	StatusRecoveredLater   Status = "recovered_later"
)

// WaitingDays is how many full days a called lead stays in Waiting.
const WaitingDays = 7

// IsRecovered reports whether s is one of the recovered buckets.
func (s Status) IsRecovered() bool {
	switch s {
	case StatusRecoveredBefore, StatusRecoveredSameDay, StatusRecoveredLater:
		return true
	default:
		return false
	}
}

// Classify derives a lead's recovery status as of now.
//
// Precedence: a detected login wins over call timing; a login strictly before
// the call (or with no call at all) counts as recovered before.
func Classify(l leads.Lead, now time.Time) Status {
	loc := now.Location()

	if l.IsRecovered && l.CurrentLastLogin != nil {
		login := *l.CurrentLastLogin
		if l.CalledAt == nil || login.Before(*l.CalledAt) {
			return StatusRecoveredBefore
		}
		if SameDay(login, *l.CalledAt, loc) {
			return StatusRecoveredSameDay
		}
		return StatusRecoveredLater
	}

	if l.CalledAt != nil {
		if DaysBetween(now, *l.CalledAt) > WaitingDays {
			return StatusNotRecovered
		}
		return StatusWaiting
	}
	return StatusPending
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the number of full days from b to a, truncated toward
// zero. Days are calendar days in a's location, so a DST shift does not make
// a day shorter or longer.
func DaysBetween(a, b time.Time) int {
	loc := a.Location()
	b = b.In(loc)

	sign := 1
	if a.Before(b) {
		a, b = b, a
		sign = -1
	}

	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	civilA := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	civilB := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(civilA.Sub(civilB).Hours() / 24)

	// The last day is incomplete when a's clock is earlier than b's.
	if days > 0 && b.AddDate(0, 0, days).After(a) {
		days--
	}
	return sign * days
}

// AttemptsAndCost returns the number of recorded attempts and their summed price.
// Negative prices are ignored.
func AttemptsAndCost(l leads.Lead) (int, float64) {
	var total float64
	for _, a := range l.CallHistory {
		if a.Price > 0 {
			total += a.Price
		}
	}
	return len(l.CallHistory), total
}
