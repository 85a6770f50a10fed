package campaign

import (
	"context"
	"sync"
	"time"

	"lead-recovery/pkg/logger"
)

// DefaultRetention matches the tracker's default key TTL.
const DefaultRetention = 24 * time.Hour

// Runner executes batches in the background so HTTP callers get the batch id
// right away. Results of finished batches are kept for the retention window.
type Runner struct {
	orch *Orchestrator
	base context.Context

	retention time.Duration
	clock     func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]struct{}
	results map[string]finishedBatch
}

type finishedBatch struct {
	res      BatchResult
	storedAt time.Time
}

// NewRunner binds batches to base; cancelling base stops pipelines that
// have not dialed yet.
func NewRunner(base context.Context, orch *Orchestrator) *Runner {
	return &Runner{
		orch:      orch,
		base:      base,
		retention: DefaultRetention,
		clock:     time.Now,
		running:   map[string]struct{}{},
		results:   map[string]finishedBatch{},
	}
}

// SetRetention sets how long finished results are kept. Non-positive values
// are ignored.
func (r *Runner) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.retention = d
	r.mu.Unlock()
}

// pruneLocked drops results older than the retention window. r.mu must be held.
func (r *Runner) pruneLocked() {
	cutoff := r.clock().Add(-r.retention)
	for id, fb := range r.results {
		if fb.storedAt.Before(cutoff) {
			delete(r.results, id)
		}
	}
}

// Start validates req and runs it asynchronously. A batch id that is still
// running is not started twice.
func (r *Runner) Start(ctx context.Context, req Request) (string, error) {
	req, err := r.orch.Prepare(req)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.pruneLocked()
	if _, busy := r.running[req.BatchID]; busy {
		r.mu.Unlock()
		return req.BatchID, nil
	}
	r.running[req.BatchID] = struct{}{}
	r.mu.Unlock()

	// Keep the request logger, drop the request deadline.
	runCtx := logger.With(r.base, logger.From(ctx))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.orch.Run(runCtx, req)

		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.running, req.BatchID)
		if err != nil {
			logger.From(runCtx).Error("campaign run failed", "batch_id", req.BatchID, "err", err)
			return
		}
		r.results[req.BatchID] = finishedBatch{res: res, storedAt: r.clock()}
	}()
	return req.BatchID, nil
}

// Result returns the full result of a batch finished by this process.
func (r *Runner) Result(batchID string) (BatchResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	fb, ok := r.results[batchID]
	return fb.res, ok
}

// Progress reads live progress from the tracker.
func (r *Runner) Progress(ctx context.Context, batchID string) (Progress, error) {
	return r.orch.Tracker().Progress(ctx, batchID)
}

// Wait blocks until every started batch has returned.
func (r *Runner) Wait() { r.wg.Wait() }
