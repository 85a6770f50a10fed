package campaign

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lead-recovery/internal/calls"
	"lead-recovery/internal/leads"
	"lead-recovery/internal/telephony"
	"lead-recovery/pkg/logger"
)

// leadRun accumulates one lead's pipeline as it moves through its states.
type leadRun struct {
	batchID string
	res     LeadResult

	// noCall is set when the dial failed before the gateway accepted anything,
	// so the lead may be dialed again under the same batch.
	noCall bool
}

func (r *leadRun) enter(s State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
}

func (r *leadRun) warn(err error) {
	r.res.Warnings = append(r.res.Warnings, err.Error())
}

func (r *leadRun) fail(err error) {
	r.res.Outcome = OutcomeError
	r.res.Error = err.Error()
}

// runLead drives one lead through
// pending -> dialing -> call_placed -> status_checked -> [sms] -> persisted -> done.
// Stages run strictly in order; only a dial failure ends the pipeline early.
func (o *Orchestrator) runLead(ctx context.Context, batchID string, table leads.Table, t Target, sms string) LeadResult {
	log := logger.From(ctx).With("lead_id", t.LeadID)
	run := &leadRun{batchID: batchID, res: LeadResult{LeadID: t.LeadID, Phone: t.Phone, Outcome: OutcomePending}}
	run.enter(StatePending)

	o.deps.Metrics.LeadStarted()
	defer o.deps.Metrics.LeadDone()
	defer func() {
		o.deps.Metrics.LeadFinished(string(run.res.Outcome))
		// A skipped lead keeps the outcome of the run that dialed it.
		if run.res.Outcome == OutcomeSkipped {
			return
		}
		if err := o.deps.Tracker.Record(context.WithoutCancel(ctx), batchID, t.LeadID, run.res.Outcome); err != nil {
			log.Warn("tracker record failed", "err", err)
		}
	}()

	claimed, err := o.deps.Tracker.Claim(ctx, batchID, t.LeadID)
	if err != nil {
		o.deps.Metrics.StageFailed(StageClaim)
		run.fail(stageError(StageClaim, t.LeadID, ErrClaim, err))
		log.Error("lead claim failed", "stage", StageClaim, "err", err)
		return run.res
	}
	if !claimed {
		run.res.Outcome = OutcomeSkipped
		log.Debug("lead already dialed in this batch")
		return run.res
	}

	callID, ok := o.dial(ctx, run, t)
	if !ok {
		if run.noCall {
			if err := o.deps.Tracker.Release(context.WithoutCancel(ctx), batchID, t.LeadID); err != nil {
				log.Warn("tracker release failed", "err", err)
			}
		}
		return run.res
	}
	// From here on the call exists and is billed: the lead counts as success.
	run.res.Outcome = OutcomeSuccess

	status, price := o.settleAndCheck(ctx, run, callID)
	run.res.Status = status
	run.res.Price = price

	if sms != "" {
		o.sendSMS(ctx, run, sms)
	}

	o.persist(ctx, run, table, leads.CallAttempt{CallID: callID, Status: status, Price: price})
	run.enter(StateDone)
	return run.res
}

func (o *Orchestrator) dial(ctx context.Context, run *leadRun, t Target) (string, bool) {
	log := logger.From(ctx).With("lead_id", t.LeadID)
	run.enter(StateDialing)

	// noCall marks failures where the gateway provably placed no call.
	callFailed := func(cause error, noCall bool) (string, bool) {
		run.enter(StateCallFailed)
		run.noCall = noCall
		run.fail(stageError(StageDial, t.LeadID, ErrDial, cause))
		log.Warn("dial failed", "stage", StageDial, "phone", t.Phone, "err", cause)
		return "", false
	}

	if err := ctx.Err(); err != nil {
		return callFailed(fmt.Errorf("%w: %w", ErrCancelled, err), true)
	}
	phone, err := telephony.NormalizePhone(t.Phone, o.cfg.CountryCode)
	if err != nil {
		return callFailed(err, true)
	}
	run.res.Phone = phone

	release, err := o.deps.Limiter.Acquire(ctx, holderID(run.batchID, t.LeadID))
	if err != nil {
		return callFailed(fmt.Errorf("concurrency slot: %w", err), true)
	}
	defer release()

	dctx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
	defer cancel()
	var placed telephony.PlaceCallResult
	err = o.measure(StageDial, func() error {
		var err error
		placed, err = o.deps.Voice.PlaceCall(dctx, telephony.PlaceCallRequest{Phone: phone, AudioID: o.cfg.AudioID})
		return err
	})
	if err != nil {
		// A timeout or transport error may hide a placed call; keep the claim.
		return callFailed(err, errors.Is(err, telephony.ErrGatewayRejected))
	}
	if placed.CallID == "" {
		return callFailed(telephony.ErrMissingCallID, false)
	}

	run.res.CallID = placed.CallID
	run.enter(StateCallPlaced)
	log.Debug("call placed", "call_id", placed.CallID, "phone", phone)
	return placed.CallID, true
}

// settleAndCheck waits for the call to finish and reads its status.
// Any failure degrades to status unknown with price 0.
func (o *Orchestrator) settleAndCheck(ctx context.Context, run *leadRun, callID string) (string, float64) {
	log := logger.From(ctx).With("lead_id", run.res.LeadID, "call_id", callID)
	unknown := string(calls.StatusUnknown)

	if err := o.wait(ctx, o.cfg.SettleDelay); err != nil {
		run.warn(stageError(StageStatus, run.res.LeadID, ErrStatusQuery, fmt.Errorf("%w: %w", ErrCancelled, err)))
		run.enter(StateStatusChecked)
		log.Warn("settle wait interrupted", "stage", StageStatus, "err", err)
		return unknown, 0
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StatusTimeout)
	defer cancel()
	var st telephony.CallStatusResult
	err := o.measure(StageStatus, func() error {
		var err error
		st, err = o.deps.Voice.GetCallStatus(sctx, callID)
		return err
	})
	run.enter(StateStatusChecked)
	if err != nil {
		run.warn(stageError(StageStatus, run.res.LeadID, ErrStatusQuery, err))
		log.Warn("status query failed", "stage", StageStatus, "err", err)
		return unknown, 0
	}
	status := st.Status
	if status == "" {
		status = unknown
	}
	log.Debug("status checked", "status", status, "price", st.Price)
	return status, st.Price
}

func (o *Orchestrator) sendSMS(ctx context.Context, run *leadRun, content string) {
	log := logger.From(ctx).With("lead_id", run.res.LeadID)
	if err := ctx.Err(); err != nil {
		run.enter(StateSMSFailed)
		run.warn(stageError(StageSMS, run.res.LeadID, ErrSMS, fmt.Errorf("%w: %w", ErrCancelled, err)))
		return
	}

	mctx, cancel := context.WithTimeout(ctx, o.cfg.SMSTimeout)
	defer cancel()
	err := o.measure(StageSMS, func() error {
		return o.deps.SMS.SendSMS(mctx, run.res.Phone, content)
	})
	if err != nil {
		run.enter(StateSMSFailed)
		run.warn(stageError(StageSMS, run.res.LeadID, ErrSMS, err))
		log.Warn("sms failed", "stage", StageSMS, "phone", run.res.Phone, "err", err)
		return
	}
	run.res.SMSSent = true
	run.enter(StateSMSSent)
}

// persist appends the attempt even when ctx is already cancelled: the call
// was placed and must be recorded.
func (o *Orchestrator) persist(ctx context.Context, run *leadRun, table leads.Table, attempt leads.CallAttempt) {
	log := logger.From(ctx).With("lead_id", run.res.LeadID)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()

	err := o.measure(StagePersist, func() error {
		_, err := o.deps.Leads.AppendCallAttempt(pctx, table, run.res.LeadID, attempt, o.clock())
		return err
	})
	if err != nil {
		run.res.PersistFailed = true
		run.warn(stageError(StagePersist, run.res.LeadID, ErrPersist, err))
		msg := "call placed but not recorded"
		if errors.Is(err, leads.ErrNotFound) {
			msg = "call placed for a lead that no longer exists"
		}
		log.Error(msg, "stage", StagePersist, "call_id", attempt.CallID, "err", err)
		return
	}
	run.enter(StatePersisted)
}

func holderID(batchID string, leadID int64) string {
	return batchID + ":" + strconv.FormatInt(leadID, 10)
}
