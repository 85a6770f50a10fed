package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Actor identifies who triggered an event.
type Actor struct {
	Subject string
	Role    string
	IP      string
}

// Service records operator actions that reach external gateways.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if (e.Type == EventTypeCampaignStarted || e.Type == EventTypeCampaignFinished) && e.BatchID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// CampaignStarted records a batch launch and how many leads it targets.
func (s *Service) CampaignStarted(ctx context.Context, a Actor, batchID, table string, targets int) error {
	return s.Append(ctx, Event{
		Type:      EventTypeCampaignStarted,
		Actor:     a.Subject,
		ActorRole: a.Role,
		IPAddress: a.IP,
		BatchID:   batchID,
		Table:     table,
		Message:   "campaign started",
		Metadata:  encodeMetadata(map[string]any{"targets": targets}),
	})
}

// CampaignFinished records the settled outcome counts of a batch.
func (s *Service) CampaignFinished(ctx context.Context, a Actor, batchID, table string, counts map[string]int) error {
	return s.Append(ctx, Event{
		Type:      EventTypeCampaignFinished,
		Actor:     a.Subject,
		ActorRole: a.Role,
		IPAddress: a.IP,
		BatchID:   batchID,
		Table:     table,
		Message:   "campaign finished",
		Metadata:  encodeMetadata(counts),
	})
}

// TestBlast records an ad-hoc dial to numbers outside the lead tables.
func (s *Service) TestBlast(ctx context.Context, a Actor, lines int) error {
	return s.Append(ctx, Event{
		Type:      EventTypeTestBlast,
		Actor:     a.Subject,
		ActorRole: a.Role,
		IPAddress: a.IP,
		Message:   "test blast",
		Metadata:  encodeMetadata(map[string]any{"lines": lines}),
	})
}

// SMSSent records a standalone SMS.
func (s *Service) SMSSent(ctx context.Context, a Actor, phone string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeSMSSent,
		Actor:     a.Subject,
		ActorRole: a.Role,
		IPAddress: a.IP,
		Message:   "sms sent",
		Metadata:  encodeMetadata(map[string]any{"phone": phone}),
	})
}

func encodeMetadata(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Login records a successful operator or viewer sign-in.
func (s *Service) Login(ctx context.Context, a Actor) error {
	return s.Append(ctx, Event{
		Type:      EventTypeLogin,
		Actor:     a.Subject,
		ActorRole: a.Role,
		IPAddress: a.IP,
		Message:   "login",
	})
}
