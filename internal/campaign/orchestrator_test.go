package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lead-recovery/internal/audit"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/telephony"
	"lead-recovery/internal/vip"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeVoice struct {
	mu        sync.Mutex
	fail      map[string]error
	statusErr error
	placed    []string
	delay     time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeVoice) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req.Phone)
	if err := f.fail[req.Phone]; err != nil {
		return telephony.PlaceCallResult{}, err
	}
	return telephony.PlaceCallResult{CallID: fmt.Sprintf("call-%s", req.Phone)}, nil
}

func (f *fakeVoice) GetCallStatus(ctx context.Context, callID string) (telephony.CallStatusResult, error) {
	if f.statusErr != nil {
		return telephony.CallStatusResult{}, f.statusErr
	}
	return telephony.CallStatusResult{CallID: callID, Status: "answered", Price: 0.25}, nil
}

func (f *fakeVoice) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.placed...)
}

type fakeSMS struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSMS) SendSMS(ctx context.Context, phone, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone)
	return nil
}

type fakeVIP struct {
	mu     sync.Mutex
	fail   map[int64]error
	grants map[int64][]string
}

func (f *fakeVIP) GrantCommands(ctx context.Context, passport int64, commands []string, expiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[passport]; err != nil {
		return err
	}
	if f.grants == nil {
		f.grants = map[int64][]string{}
	}
	f.grants[passport] = commands
	return nil
}

var testNow = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, deps Deps, cfg Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(deps, cfg)
	require.NoError(t, err)
	o.clock = func() time.Time { return testNow }
	return o
}

func seedLeads(repo *leads.MemoryRepository) {
	prev := testNow.Add(-48 * time.Hour)
	repo.Put(leads.TableD2,
		leads.Lead{ID: 1, Passport: 100, Phone: "11999990001", CreatedAt: prev},
		leads.Lead{ID: 2, Passport: 200, Phone: "(11) 99999-0002", CreatedAt: prev, CallCount: 2, CalledAt: &prev,
			CallHistory: []leads.CallAttempt{
				{CallNumber: 1, Date: &prev, Status: "no_answer"},
				{CallNumber: 2, Date: &prev, Status: "busy"},
			}},
	)
}

func targets(t *testing.T, repo *leads.MemoryRepository, ids ...int64) []Target {
	t.Helper()
	var out []leads.Lead
	for _, id := range ids {
		l, ok := repo.Get(leads.TableD2, id)
		require.True(t, ok)
		out = append(out, l)
	}
	return TargetsFromLeads(out)
}

func TestRun_DialFailureAndSuccess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{fail: map[string]error{"+5511999990001": telephony.ErrGatewayRejected}}
	auditRepo := audit.NewMemoryRepo()
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice, Audit: audit.NewService(auditRepo)}, Config{AudioID: "audio-1"})

	res, err := o.Run(context.Background(), Request{Table: leads.TableD2, Targets: targets(t, repo, 1, 2)})
	require.NoError(t, err)

	assert.Equal(t, map[int64]Outcome{1: OutcomeError, 2: OutcomeSuccess}, res.Outcomes())
	assert.Equal(t, StateCallFailed, res.Leads[1].State)
	assert.Contains(t, res.Leads[1].Error, "dial failed")
	assert.Equal(t, []State{StatePending, StateDialing, StateCallPlaced, StateStatusChecked, StatePersisted, StateDone}, res.Leads[2].Trace)

	b, _ := repo.Get(leads.TableD2, 2)
	require.Len(t, b.CallHistory, 3)
	last := b.CallHistory[2]
	assert.Equal(t, 3, last.CallNumber)
	assert.Equal(t, 3, b.CallCount)
	assert.Equal(t, "answered", last.Status)
	assert.Equal(t, 0.25, last.Price)
	assert.Equal(t, "call-+5511999990002", last.CallID)
	require.NotNil(t, b.CalledAt)
	assert.True(t, b.CalledAt.Equal(testNow))

	a, _ := repo.Get(leads.TableD2, 1)
	assert.Equal(t, 0, a.CallCount)
	assert.Empty(t, a.CallHistory)

	assert.Len(t, auditRepo.OfType(audit.EventTypeCampaignStarted), 1)
	assert.Len(t, auditRepo.OfType(audit.EventTypeCampaignFinished), 1)

	p, err := o.Tracker().Progress(context.Background(), res.BatchID)
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.Equal(t, res.Outcomes(), p.Outcomes)
}

func TestRun_StatusFailureDegradesToUnknown(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{statusErr: errors.New("timeout")}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{})

	res, err := o.Run(context.Background(), Request{Table: leads.TableD2, Targets: targets(t, repo, 2)})
	require.NoError(t, err)

	r := res.Leads[2]
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.Equal(t, "unknown", r.Status)
	assert.Zero(t, r.Price)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "status query failed")

	b, _ := repo.Get(leads.TableD2, 2)
	assert.Equal(t, "unknown", b.CallHistory[len(b.CallHistory)-1].Status)
}

func TestRun_SMSFailureIsNonFatal(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	sms := &fakeSMS{err: telephony.ErrGatewayRejected}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: &fakeVoice{}, SMS: sms}, Config{})

	res, err := o.Run(context.Background(), Request{Table: leads.TableD2, Targets: targets(t, repo, 1), SMSMessage: "volte!"})
	require.NoError(t, err)

	r := res.Leads[1]
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.False(t, r.SMSSent)
	assert.Contains(t, r.Trace, StateSMSFailed)
	assert.Contains(t, r.Trace, StatePersisted)
}

func TestRun_SMSSentAfterStatus(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	sms := &fakeSMS{}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: &fakeVoice{}, SMS: sms}, Config{})

	res, err := o.Run(context.Background(), Request{Table: leads.TableD2, Targets: targets(t, repo, 1), SMSMessage: "volte!"})
	require.NoError(t, err)
	assert.True(t, res.Leads[1].SMSSent)
	assert.Equal(t, []string{"+5511999990001"}, sms.sent)
	assert.Equal(t, []State{StatePending, StateDialing, StateCallPlaced, StateStatusChecked, StateSMSSent, StatePersisted, StateDone}, res.Leads[1].Trace)
}

func TestRun_PersistFailureIsReportedDistinctly(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	repo.FailUpdate = errors.New("db down")
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: &fakeVoice{}}, Config{})

	res, err := o.Run(context.Background(), Request{Table: leads.TableD2, Targets: targets(t, repo, 1)})
	require.NoError(t, err)

	r := res.Leads[1]
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.True(t, r.PersistFailed)
	assert.NotContains(t, r.Trace, StatePersisted)
	assert.Equal(t, 1, res.Counts()["persist_failed"])
}

func TestRun_SameBatchIDSkipsDialedLeads(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{})
	req := Request{BatchID: "retry-1", Table: leads.TableD2, Targets: targets(t, repo, 1, 2)}

	_, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[int64]Outcome{1: OutcomeSkipped, 2: OutcomeSkipped}, second.Outcomes())
	assert.Len(t, voice.calls(), 2)
	b, _ := repo.Get(leads.TableD2, 2)
	assert.Equal(t, 3, b.CallCount)

	p, err := o.Tracker().Progress(context.Background(), "retry-1")
	require.NoError(t, err)
	assert.Equal(t, map[int64]Outcome{1: OutcomeSuccess, 2: OutcomeSuccess}, p.Outcomes)
}

func TestRun_SameBatchIDRedialsRejectedLeads(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{fail: map[string]error{"+5511999990001": fmt.Errorf("%w: status 503", telephony.ErrGatewayRejected)}}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{})
	req := Request{BatchID: "retry-2", Table: leads.TableD2, Targets: targets(t, repo, 1)}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, first.Leads[1].Outcome)

	delete(voice.fail, "+5511999990001")
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, second.Leads[1].Outcome)
	assert.Len(t, voice.calls(), 2)

	a, _ := repo.Get(leads.TableD2, 1)
	assert.Equal(t, 1, a.CallCount)
}

func TestRun_SameBatchIDResumesAfterCancel(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{})
	req := Request{BatchID: "resume-1", Table: leads.TableD2, Targets: targets(t, repo, 1, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled, err := o.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, map[int64]Outcome{1: OutcomeError, 2: OutcomeError}, cancelled.Outcomes())

	resumed, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[int64]Outcome{1: OutcomeSuccess, 2: OutcomeSuccess}, resumed.Outcomes())
	assert.Len(t, voice.calls(), 2)
}

func TestRun_AmbiguousDialFailureKeepsClaim(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{fail: map[string]error{"+5511999990001": errors.New("read: connection reset by peer")}}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{})
	req := Request{BatchID: "retry-3", Table: leads.TableD2, Targets: targets(t, repo, 1)}

	_, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	delete(voice.fail, "+5511999990001")
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, second.Leads[1].Outcome)
	assert.Len(t, voice.calls(), 1)
	p, err := o.Tracker().Progress(context.Background(), "retry-3")
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, p.Outcomes[1])
}

func TestRun_CancelledBeforeDialPlacesNoCalls(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	voice := &fakeVoice{}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Run(ctx, Request{Table: leads.TableD2, Targets: targets(t, repo, 1, 2)})
	require.NoError(t, err)

	assert.Equal(t, map[int64]Outcome{1: OutcomeError, 2: OutcomeError}, res.Outcomes())
	assert.Empty(t, voice.calls())
}

func TestRun_CancelDuringSettleStillPersists(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: &fakeVoice{}, SMS: &fakeSMS{}}, Config{SettleDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.wait = func(ctx context.Context, d time.Duration) error {
		assert.Equal(t, time.Hour, d)
		cancel()
		return ctx.Err()
	}

	res, err := o.Run(ctx, Request{Table: leads.TableD2, Targets: targets(t, repo, 1), SMSMessage: "hi"})
	require.NoError(t, err)

	r := res.Leads[1]
	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.Equal(t, "unknown", r.Status)
	assert.Contains(t, r.Trace, StateSMSFailed)
	assert.Contains(t, r.Trace, StatePersisted)

	a, _ := repo.Get(leads.TableD2, 1)
	require.Len(t, a.CallHistory, 1)
	assert.Equal(t, "unknown", a.CallHistory[0].Status)
	assert.Equal(t, 1, a.CallHistory[0].CallNumber)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := leads.NewMemoryRepository()
	var ts []Target
	for i := int64(1); i <= 8; i++ {
		repo.Put(leads.TableD1, leads.Lead{ID: i, Phone: fmt.Sprintf("1199999%04d", i)})
		ts = append(ts, Target{LeadID: i, Phone: fmt.Sprintf("1199999%04d", i)})
	}
	voice := &fakeVoice{delay: 10 * time.Millisecond}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice}, Config{MaxConcurrency: 2})

	res, err := o.Run(context.Background(), Request{Table: leads.TableD1, Targets: ts})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 8)
	assert.Equal(t, 8, res.Counts()[string(OutcomeSuccess)])
	assert.LessOrEqual(t, voice.maxInflight.Load(), int32(2))
}

func TestRun_VIPPhaseAfterCalls(t *testing.T) {
	repo := leads.NewMemoryRepository()
	seedLeads(repo)
	grants := &fakeVIP{fail: map[int64]error{200: errors.New("boom")}}
	voice := &fakeVoice{fail: map[string]error{"+5511999990001": telephony.ErrGatewayRejected}}
	o := newTestOrchestrator(t, Deps{Leads: repo, Voice: voice, VIP: grants}, Config{})

	res, err := o.Run(context.Background(), Request{
		Table:   leads.TableD2,
		Targets: targets(t, repo, 1, 2),
		VIP:     &VIPRequest{Commands: "give vip\n\n  bonus 10 "},
	})
	require.NoError(t, err)

	require.Len(t, res.VIP, 2)
	assert.Equal(t, VIPResult{Passport: 100, OK: true}, res.VIP[0])
	assert.Equal(t, int64(200), res.VIP[1].Passport)
	assert.False(t, res.VIP[1].OK)
	assert.Contains(t, res.VIP[1].Error, "vip grant failed")
	// Granted regardless of the failed dial for lead 1.
	assert.Equal(t, []string{"100 give vip", "100 bonus 10"}, grants.grants[100])
}

func TestPrepare_Validates(t *testing.T) {
	o := newTestOrchestrator(t, Deps{Leads: leads.NewMemoryRepository(), Voice: &fakeVoice{}}, Config{})
	cases := map[string]Request{
		"no table":   {Targets: []Target{{LeadID: 1}}},
		"no targets": {Table: leads.TableD1},
		"duplicate":  {Table: leads.TableD1, Targets: []Target{{LeadID: 1}, {LeadID: 1}}},
		"sms no gw":  {Table: leads.TableD1, Targets: []Target{{LeadID: 1}}, SMSMessage: "x"},
		"vip no gw":  {Table: leads.TableD1, Targets: []Target{{LeadID: 1}}, VIP: &VIPRequest{Commands: "x"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := o.Prepare(req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	req, err := o.Prepare(Request{Table: leads.TableD1, Targets: []Target{{LeadID: 1}}})
	require.NoError(t, err)
	assert.NotEmpty(t, req.BatchID)
}

func TestPrepare_RejectsEmptyVIPGrant(t *testing.T) {
	o := newTestOrchestrator(t, Deps{Leads: leads.NewMemoryRepository(), Voice: &fakeVoice{}, VIP: &fakeVIP{}}, Config{})
	base := Request{Table: leads.TableD1, Targets: []Target{{LeadID: 1}}}

	for name, commands := range map[string]string{"empty": "", "blank lines": "  \n\t\n  "} {
		t.Run(name, func(t *testing.T) {
			req := base
			req.VIP = &VIPRequest{Commands: commands}
			_, err := o.Prepare(req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.ErrorIs(t, err, vip.ErrInvalidGrant)
		})
	}

	expires := testNow.Add(24 * time.Hour)
	req := base
	req.VIP = &VIPRequest{Commands: "   ", ExpiresAt: &expires}
	_, err := o.Prepare(req)
	assert.NoError(t, err, "expiry alone is a valid grant")
}

func TestStageError_Unwraps(t *testing.T) {
	err := stageError(StageDial, 7, ErrDial, telephony.ErrGatewayRejected)
	assert.ErrorIs(t, err, ErrDial)
	assert.ErrorIs(t, err, telephony.ErrGatewayRejected)
	assert.True(t, strings.HasPrefix(err.Error(), "lead 7: dial:"))

	var se *StageError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &se)
	assert.Equal(t, int64(7), se.LeadID)
}
