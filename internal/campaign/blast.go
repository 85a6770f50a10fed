package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lead-recovery/internal/audit"
	"lead-recovery/internal/telephony"
	"lead-recovery/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BlastRequest dials ad-hoc numbers outside the lead tables.
// Lines are "5511999999999" or "Name - 5511999999999".
type BlastRequest struct {
	Lines      []string
	SMSMessage string
	// VIP, when set, grants commands to a single passport after the calls.
	VIP   *BlastVIP
	Actor audit.Actor
}

type BlastVIP struct {
	Passport  int64      `json:"passport"`
	Commands  string     `json:"commands"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type BlastLine struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone"`
	CallID  string `json:"call_id,omitempty"`
	Called  bool   `json:"called"`
	SMSSent bool   `json:"sms_sent"`
	Error   string `json:"error,omitempty"`
}

type BlastResult struct {
	Lines []BlastLine `json:"lines"`
	VIP   *VIPResult  `json:"vip,omitempty"`
}

// TestBlast dials and messages every line concurrently. There is no settle
// wait, status query or persistence.
func (o *Orchestrator) TestBlast(ctx context.Context, req BlastRequest) (BlastResult, error) {
	var lines []telephony.TestLine
	for _, raw := range req.Lines {
		if l, ok := telephony.ParseTestLine(raw); ok {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return BlastResult{}, fmt.Errorf("%w: no numbers to dial", ErrInvalidRequest)
	}
	if req.SMSMessage != "" && o.deps.SMS == nil {
		return BlastResult{}, fmt.Errorf("%w: sms gateway not configured", ErrInvalidRequest)
	}
	if req.VIP != nil && (o.deps.VIP == nil || req.VIP.Passport <= 0) {
		return BlastResult{}, fmt.Errorf("%w: vip grant needs a configured gateway and a passport", ErrInvalidRequest)
	}

	log := logger.From(ctx).With("blast_id", uuid.NewString())
	ctx = logger.With(ctx, log)
	if o.deps.Audit != nil {
		if err := o.deps.Audit.TestBlast(ctx, req.Actor, len(lines)); err != nil {
			log.Warn("audit test blast failed", "err", err)
		}
	}

	out := BlastResult{Lines: make([]BlastLine, len(lines))}
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, l := range lines {
		g.Go(func() error {
			out.Lines[i] = o.blastOne(ctx, l, req.SMSMessage)
			return nil
		})
	}
	_ = g.Wait()

	if req.VIP != nil {
		res := o.grantOne(ctx, req.VIP.Passport, req.VIP.Commands, req.VIP.ExpiresAt)
		out.VIP = &res
	}
	log.Info("test blast finished", "lines", len(lines))
	return out, nil
}

func (o *Orchestrator) blastOne(ctx context.Context, l telephony.TestLine, sms string) BlastLine {
	log := logger.From(ctx)
	res := BlastLine{Name: l.Name, Phone: l.Phone}

	phone, err := telephony.NormalizePhone(l.Phone, o.cfg.CountryCode)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Phone = phone

	// Dial and SMS are independent here; one failing does not stop the other.
	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dctx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
		defer cancel()
		var placed telephony.PlaceCallResult
		errs[0] = o.measure(StageDial, func() error {
			var err error
			placed, err = o.deps.Voice.PlaceCall(dctx, telephony.PlaceCallRequest{Phone: phone, AudioID: o.cfg.AudioID})
			return err
		})
		if errs[0] == nil && placed.CallID == "" {
			errs[0] = telephony.ErrMissingCallID
		}
		if errs[0] == nil {
			res.CallID = placed.CallID
			res.Called = true
		}
	}()
	if sms != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mctx, cancel := context.WithTimeout(ctx, o.cfg.SMSTimeout)
			defer cancel()
			errs[1] = o.measure(StageSMS, func() error { return o.deps.SMS.SendSMS(mctx, phone, sms) })
			res.SMSSent = errs[1] == nil
		}()
	}
	wg.Wait()

	var msgs []string
	if errs[0] != nil {
		msgs = append(msgs, fmt.Errorf("%w: %w", ErrDial, errs[0]).Error())
	}
	if errs[1] != nil {
		msgs = append(msgs, fmt.Errorf("%w: %w", ErrSMS, errs[1]).Error())
	}
	if len(msgs) > 0 {
		res.Error = strings.Join(msgs, "; ")
		log.Warn("test blast line failed", "phone", phone, "err", res.Error)
	}
	return res
}

// SendSMS sends one standalone message.
func (o *Orchestrator) SendSMS(ctx context.Context, a audit.Actor, phone, content string) (string, error) {
	if o.deps.SMS == nil {
		return "", fmt.Errorf("%w: sms gateway not configured", ErrInvalidRequest)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	normalized, err := telephony.NormalizePhone(phone, o.cfg.CountryCode)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	mctx, cancel := context.WithTimeout(ctx, o.cfg.SMSTimeout)
	defer cancel()
	if err := o.measure(StageSMS, func() error { return o.deps.SMS.SendSMS(mctx, normalized, content) }); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSMS, err)
	}
	if o.deps.Audit != nil {
		if err := o.deps.Audit.SMSSent(ctx, a, normalized); err != nil {
			logger.From(ctx).Warn("audit sms failed", "err", err)
		}
	}
	return normalized, nil
}
