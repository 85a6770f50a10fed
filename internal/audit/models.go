package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Every outbound batch leaves a started and a finished event.
// - Audit writes are best-effort; callers never block a campaign on them.
//
// Storage (Postgres): table audit_events, INSERT-only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Actor is the session subject that triggered the event.
	Actor     string `json:"actor,omitempty" db:"actor"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	BatchID string `json:"batch_id,omitempty" db:"batch_id"`
	Table   string `json:"table_name,omitempty" db:"table_name"`

	Message string `json:"message,omitempty" db:"message"`
	// Metadata is optional JSON with counts or request details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCampaignStarted  EventType = "campaign_started"
	EventTypeCampaignFinished EventType = "campaign_finished"
	EventTypeTestBlast        EventType = "test_blast"
	EventTypeSMSSent          EventType = "sms_sent"
	EventTypeLogin            EventType = "login"
)
