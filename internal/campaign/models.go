package campaign

import (
	"time"

	"lead-recovery/internal/audit"
	"lead-recovery/internal/leads"
)

// State is a step of one lead's pipeline.
type State string

const (
	StatePending       State = "pending"
	StateDialing       State = "dialing"
	StateCallFailed    State = "call_failed"
	StateCallPlaced    State = "call_placed"
	StateStatusChecked State = "status_checked"
	StateSMSSent       State = "sms_sent"
	StateSMSFailed     State = "sms_failed"
	StatePersisted     State = "persisted"
	StateDone          State = "done"
)

// Outcome is the per-lead result reported to operators.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	// OutcomeSkipped marks a lead already dialed under the same batch id.
	OutcomeSkipped Outcome = "skipped"
)

// Target is one lead to dial.
type Target struct {
	LeadID   int64  `json:"lead_id"`
	Phone    string `json:"phone"`
	Passport int64  `json:"passport,omitempty"`
}

// TargetsFromLeads maps lead rows to dial targets, keeping their order.
func TargetsFromLeads(in []leads.Lead) []Target {
	out := make([]Target, 0, len(in))
	for _, l := range in {
		out = append(out, Target{LeadID: l.ID, Phone: l.Phone, Passport: l.Passport})
	}
	return out
}

// VIPRequest asks for login commands to be granted after the calls settle.
// Commands is a multi-line template; each line becomes "<passport> <line>".
type VIPRequest struct {
	// Passports defaults to the targets' passports when empty.
	Passports []int64    `json:"passports,omitempty"`
	Commands  string     `json:"commands"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Request struct {
	// BatchID doubles as the idempotency key. Generated when empty.
	BatchID    string
	Table      leads.Table
	Targets    []Target
	SMSMessage string
	VIP        *VIPRequest
	Actor      audit.Actor
}

type LeadResult struct {
	LeadID  int64   `json:"lead_id"`
	Phone   string  `json:"phone"`
	Outcome Outcome `json:"outcome"`
	State   State   `json:"state"`

	CallID  string  `json:"call_id,omitempty"`
	Status  string  `json:"status,omitempty"`
	Price   float64 `json:"price"`
	SMSSent bool    `json:"sms_sent"`

	// PersistFailed means the call happened but was not recorded on the lead.
	PersistFailed bool     `json:"persist_failed,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         string   `json:"error,omitempty"`
	Trace         []State  `json:"trace"`
}

type VIPResult struct {
	Passport int64  `json:"passport"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

type BatchResult struct {
	BatchID    string               `json:"batch_id"`
	Table      string               `json:"table"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Leads      map[int64]LeadResult `json:"leads"`
	VIP        []VIPResult          `json:"vip,omitempty"`
}

// Counts tallies leads by outcome, plus persist_failed for unrecorded calls.
func (b BatchResult) Counts() map[string]int {
	out := map[string]int{}
	for _, r := range b.Leads {
		out[string(r.Outcome)]++
		if r.PersistFailed {
			out["persist_failed"]++
		}
	}
	return out
}

// Outcomes flattens the result to the lead id -> outcome map.
func (b BatchResult) Outcomes() map[int64]Outcome {
	out := make(map[int64]Outcome, len(b.Leads))
	for id, r := range b.Leads {
		out[id] = r.Outcome
	}
	return out
}
