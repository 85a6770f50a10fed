// Package campaign runs outbound recovery batches: dial each lead, wait for
// the call to settle, read its status and price, optionally send an SMS, and
// record the attempt on the lead. Optional VIP grants follow the calls.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lead-recovery/internal/audit"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/metrics"
	"lead-recovery/internal/telephony"
	"lead-recovery/internal/vip"
	"lead-recovery/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	AudioID     string
	CountryCode string

	SettleDelay    time.Duration
	DialTimeout    time.Duration
	StatusTimeout  time.Duration
	SMSTimeout     time.Duration
	VIPTimeout     time.Duration
	PersistTimeout time.Duration

	// MaxConcurrency bounds lead pipelines per batch in this process.
	MaxConcurrency int
}

func (c Config) withDefaults() Config {
	out := c
	if out.CountryCode == "" {
		out.CountryCode = "55"
	}
	if out.SettleDelay < 0 {
		out.SettleDelay = 0
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 120 * time.Second
	}
	if out.StatusTimeout <= 0 {
		out.StatusTimeout = 30 * time.Second
	}
	if out.SMSTimeout <= 0 {
		out.SMSTimeout = 30 * time.Second
	}
	if out.VIPTimeout <= 0 {
		out.VIPTimeout = 30 * time.Second
	}
	if out.PersistTimeout <= 0 {
		out.PersistTimeout = 30 * time.Second
	}
	if out.MaxConcurrency <= 0 {
		out.MaxConcurrency = 10
	}
	return out
}

// Deps are the collaborators of an Orchestrator. Leads and Voice are required.
type Deps struct {
	Leads   leads.Repository
	Voice   telephony.VoiceGateway
	SMS     telephony.SMSGateway
	VIP     vip.Gateway
	Tracker Tracker
	Limiter Limiter
	Audit   *audit.Service
	Metrics *metrics.Campaign
}

type Orchestrator struct {
	deps Deps
	cfg  Config

	// clock and wait are injectable for deterministic tests.
	clock func() time.Time
	wait  func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Leads == nil {
		return nil, errors.New("campaign: leads repository is required")
	}
	if deps.Voice == nil {
		return nil, errors.New("campaign: voice gateway is required")
	}
	if deps.Tracker == nil {
		deps.Tracker = NewMemoryTracker()
	}
	if deps.Limiter == nil {
		deps.Limiter = NoopLimiter()
	}
	return &Orchestrator{deps: deps, cfg: cfg.withDefaults(), clock: time.Now, wait: sleepContext}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Tracker exposes batch progress storage to readers.
func (o *Orchestrator) Tracker() Tracker { return o.deps.Tracker }

// Prepare validates req and assigns a batch id when none is given.
func (o *Orchestrator) Prepare(req Request) (Request, error) {
	if req.Table == "" {
		return Request{}, fmt.Errorf("%w: table is required", ErrInvalidRequest)
	}
	if len(req.Targets) == 0 {
		return Request{}, fmt.Errorf("%w: at least one target is required", ErrInvalidRequest)
	}
	seen := make(map[int64]struct{}, len(req.Targets))
	for _, t := range req.Targets {
		if _, dup := seen[t.LeadID]; dup {
			return Request{}, fmt.Errorf("%w: lead %d listed twice", ErrInvalidRequest, t.LeadID)
		}
		seen[t.LeadID] = struct{}{}
	}
	if req.SMSMessage != "" && o.deps.SMS == nil {
		return Request{}, fmt.Errorf("%w: sms gateway not configured", ErrInvalidRequest)
	}
	if req.VIP != nil {
		if o.deps.VIP == nil {
			return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, vip.ErrNotConfigured)
		}
		if len(vip.BuildCommands(0, req.VIP.Commands)) == 0 && req.VIP.ExpiresAt == nil {
			return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, vip.ErrInvalidGrant)
		}
	}
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}
	return req, nil
}

/* ===================== RUN ===================== */

// Run executes every lead pipeline and then the VIP phase, and waits for all
// of them. Per-lead failures are reported on the result, never returned.
//
// When ctx is cancelled, pipelines that have not dialed stop with outcome
// error; calls already placed are still recorded on their lead.
func (o *Orchestrator) Run(ctx context.Context, req Request) (BatchResult, error) {
	req, err := o.Prepare(req)
	if err != nil {
		return BatchResult{}, err
	}
	log := logger.From(ctx).With("batch_id", req.BatchID, "table", string(req.Table))
	ctx = logger.With(ctx, log)

	started := o.clock()
	ids := make([]int64, 0, len(req.Targets))
	for _, t := range req.Targets {
		ids = append(ids, t.LeadID)
	}
	if err := o.deps.Tracker.Begin(ctx, req.BatchID, string(req.Table), ids, started); err != nil {
		return BatchResult{}, err
	}
	o.deps.Metrics.BatchStarted()
	if o.deps.Audit != nil {
		if err := o.deps.Audit.CampaignStarted(ctx, req.Actor, req.BatchID, string(req.Table), len(req.Targets)); err != nil {
			log.Warn("audit campaign started failed", "err", err)
		}
	}
	log.Info("campaign started", "targets", len(req.Targets), "sms", req.SMSMessage != "", "vip", req.VIP != nil)

	result := BatchResult{
		BatchID:   req.BatchID,
		Table:     string(req.Table),
		StartedAt: started,
		Leads:     make(map[int64]LeadResult, len(req.Targets)),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.cfg.MaxConcurrency)
	for _, t := range req.Targets {
		g.Go(func() error {
			res := o.runLead(ctx, req.BatchID, req.Table, t, req.SMSMessage)
			mu.Lock()
			result.Leads[t.LeadID] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if req.VIP != nil {
		result.VIP = o.grantVIP(ctx, req)
	}

	result.FinishedAt = o.clock()
	done := context.WithoutCancel(ctx)
	if err := o.deps.Tracker.Finish(done, req.BatchID, result.FinishedAt); err != nil {
		log.Warn("tracker finish failed", "err", err)
	}
	counts := result.Counts()
	if o.deps.Audit != nil {
		if err := o.deps.Audit.CampaignFinished(done, req.Actor, req.BatchID, string(req.Table), counts); err != nil {
			log.Warn("audit campaign finished failed", "err", err)
		}
	}
	log.Info("campaign finished", "counts", counts, "elapsed", result.FinishedAt.Sub(started).String())
	return result, nil
}

/* ===================== VIP PHASE ===================== */

func (o *Orchestrator) grantVIP(ctx context.Context, req Request) []VIPResult {
	passports := req.VIP.Passports
	if len(passports) == 0 {
		for _, t := range req.Targets {
			if t.Passport > 0 {
				passports = append(passports, t.Passport)
			}
		}
	}
	passports = uniquePassports(passports)
	out := make([]VIPResult, len(passports))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, p := range passports {
		g.Go(func() error {
			out[i] = o.grantOne(ctx, p, req.VIP.Commands, req.VIP.ExpiresAt)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) grantOne(ctx context.Context, passport int64, template string, expiresAt *time.Time) VIPResult {
	log := logger.From(ctx)
	res := VIPResult{Passport: passport}
	if err := ctx.Err(); err != nil {
		res.Error = fmt.Errorf("%w: %w", ErrVIPGrant, err).Error()
		o.deps.Metrics.VIPGrant(false)
		return res
	}

	gctx, cancel := context.WithTimeout(ctx, o.cfg.VIPTimeout)
	defer cancel()
	err := o.measure(StageVIP, func() error {
		return o.deps.VIP.GrantCommands(gctx, passport, vip.BuildCommands(passport, template), expiresAt)
	})
	if err != nil {
		o.deps.Metrics.VIPGrant(false)
		log.Warn("vip grant failed", "passport", passport, "err", err)
		res.Error = fmt.Errorf("%w: %w", ErrVIPGrant, err).Error()
		return res
	}
	o.deps.Metrics.VIPGrant(true)
	res.OK = true
	return res
}

func uniquePassports(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	out := make([]int64, 0, len(in))
	for _, p := range in {
		if p <= 0 {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// measure times one gateway or store call for the stage histogram.
func (o *Orchestrator) measure(stage string, fn func() error) error {
	begin := time.Now()
	err := fn()
	o.deps.Metrics.ObserveStage(stage, time.Since(begin))
	if err != nil {
		o.deps.Metrics.StageFailed(stage)
	}
	return err
}
