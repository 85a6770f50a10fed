package leads

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lead-recovery/internal/calls"
)

// Lead is one recovery target as stored in a lead queue table.
//
// Invariants after any successful write:
// - CallCount == len(CallHistory)
// - CallHistory entries are numbered 1..n in insertion order
//
// IsRecovered and CurrentLastLogin are owned by an external login-detection job;
// this service only reads them.
type Lead struct {
	ID       int64  `json:"id"`
	Passport int64  `json:"passport"`
	Name     string `json:"name"`
	Phone    string `json:"whatsapp"`

	// TimePlayed is in seconds.
	TimePlayed *int64 `json:"time_played"`

	LastLoginAtIngestion time.Time  `json:"last_login_at_ingestion"`
	CurrentLastLogin     *time.Time `json:"current_last_login"`
	CalledAt             *time.Time `json:"called_at"`
	IsRecovered          bool       `json:"is_recovered"`
	CreatedAt            time.Time  `json:"created_at"`

	CallCount   int           `json:"call_count"`
	CallHistory []CallAttempt `json:"call_history"`
}

// CallAttempt is one outbound call recorded on a lead.
type CallAttempt struct {
	CallNumber int        `json:"call_number"`
	Date       *time.Time `json:"date"`
	CallID     string     `json:"call_id,omitempty"`
	Status     string     `json:"status"`
	Price      float64    `json:"price"`
}

// UnmarshalJSON accepts history rows written by older writers: the timestamp
// may be under "date" or "data", the call id may be numeric and the price may
// be a number, a numeric string or null (stored as 0).
func (a *CallAttempt) UnmarshalJSON(b []byte) error {
	var raw struct {
		CallNumber json.RawMessage `json:"call_number"`
		Date       *string         `json:"date"`
		Data       *string         `json:"data"`
		CallID     json.RawMessage `json:"call_id"`
		Status     *string         `json:"status"`
		Price      json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := CallAttempt{}
	if n, ok := calls.ParseAmount(raw.CallNumber); ok {
		out.CallNumber = int(n)
	}

	stamp := raw.Date
	if stamp == nil || strings.TrimSpace(*stamp) == "" {
		stamp = raw.Data
	}
	if stamp != nil && strings.TrimSpace(*stamp) != "" {
		t, err := parseTimestamp(*stamp)
		if err != nil {
			return fmt.Errorf("call attempt date: %w", err)
		}
		out.Date = &t
	}

	out.CallID = decodeID(raw.CallID)
	if raw.Status != nil {
		out.Status = *raw.Status
	}
	if p, ok := calls.ParseAmount(raw.Price); ok {
		out.Price = p
	}

	*a = out
	return nil
}

func decodeID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return ""
		}
		return str
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NextCallNumber returns the number the next appended attempt must carry:
// last entry's number + 1, or len(history)+1 when the last entry has none.
func NextCallNumber(history []CallAttempt) int {
	if n := len(history); n > 0 && history[n-1].CallNumber > 0 {
		return history[n-1].CallNumber + 1
	}
	return len(history) + 1
}

// AppendAttempt returns a copy of lead with attempt appended at time at.
// The attempt's number and date are assigned here; CallCount and CalledAt follow.
func AppendAttempt(lead Lead, attempt CallAttempt, at time.Time) Lead {
	attempt.CallNumber = NextCallNumber(lead.CallHistory)
	stamp := at
	attempt.Date = &stamp

	history := make([]CallAttempt, 0, len(lead.CallHistory)+1)
	history = append(history, lead.CallHistory...)
	history = append(history, attempt)

	lead.CallHistory = history
	lead.CallCount = len(history)
	calledAt := at
	lead.CalledAt = &calledAt
	return lead
}
