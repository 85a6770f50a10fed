package calls

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Status is the free-form status string the voice gateway reports for a call.
// Values are stored verbatim in call history; Bucket maps them onto Outcome.
type Status string

const (
	StatusAnswered   Status = "answered"
	StatusHuman      Status = "human"
	StatusNoAnswer   Status = "no_answer"
	StatusBusy       Status = "busy"
	StatusFailed     Status = "failed"
	StatusCongestion Status = "congestion"
	StatusError      Status = "error"

	// StatusUnknown is recorded when the status query fails after a call was placed.
	StatusUnknown Status = "unknown"
)

// Outcome is the reporting bucket for a call attempt.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeNoAnswer Outcome = "no_answer"
	OutcomeBusy     Outcome = "busy"
	OutcomeFailed   Outcome = "failed"
)

// Bucket maps a gateway status onto an Outcome, case-insensitively.
// Anything unrecognized (congestion, error, unknown, empty) is a failure.
func Bucket(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "answered", "human":
		return OutcomeAnswered
	case "no answer", "no_answer":
		return OutcomeNoAnswer
	case "busy":
		return OutcomeBusy
	default:
		return OutcomeFailed
	}
}

// IsAnswered reports whether a status counts as a conversation with a person.
func IsAnswered(status string) bool {
	return Bucket(status) == OutcomeAnswered
}

// ParseAmount decodes a price that may arrive as a JSON number, a numeric
// string or null. ok is false when the value is absent or not numeric.
func ParseAmount(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != v {
		return 0, false
	}
	return v, true
}
