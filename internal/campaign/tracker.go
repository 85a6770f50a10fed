package campaign

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrBatchNotFound = errors.New("campaign: batch not found")

// Progress is the live view of a batch: which leads have settled and how.
type Progress struct {
	BatchID    string            `json:"batch_id"`
	Table      string            `json:"table"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Done       bool              `json:"done"`
	Outcomes   map[int64]Outcome `json:"outcomes"`
}

// Tracker stores batch progress and the per-lead dial claims used for dedup.
type Tracker interface {
	// Begin registers the batch; leads not yet seen start as pending.
	Begin(ctx context.Context, batchID, table string, leadIDs []int64, at time.Time) error
	// Claim returns false when the lead was already claimed under batchID.
	Claim(ctx context.Context, batchID string, leadID int64) (bool, error)
	// Release drops a claim for a lead that was never called.
	Release(ctx context.Context, batchID string, leadID int64) error
	Record(ctx context.Context, batchID string, leadID int64, outcome Outcome) error
	Finish(ctx context.Context, batchID string, at time.Time) error
	Progress(ctx context.Context, batchID string) (Progress, error)
}

// MemoryTracker is a process-local Tracker.
type MemoryTracker struct {
	mu      sync.Mutex
	batches map[string]*memoryBatch
}

type memoryBatch struct {
	progress Progress
	claims   map[int64]struct{}
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{batches: map[string]*memoryBatch{}}
}

func (t *MemoryTracker) Begin(_ context.Context, batchID, table string, leadIDs []int64, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		b = &memoryBatch{
			progress: Progress{BatchID: batchID, Table: table, StartedAt: at, Outcomes: map[int64]Outcome{}},
			claims:   map[int64]struct{}{},
		}
		t.batches[batchID] = b
	}
	b.progress.Done = false
	b.progress.FinishedAt = nil
	for _, id := range leadIDs {
		if _, seen := b.progress.Outcomes[id]; !seen {
			b.progress.Outcomes[id] = OutcomePending
		}
	}
	return nil
}

func (t *MemoryTracker) Claim(_ context.Context, batchID string, leadID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return false, ErrBatchNotFound
	}
	if _, claimed := b.claims[leadID]; claimed {
		return false, nil
	}
	b.claims[leadID] = struct{}{}
	return true, nil
}

func (t *MemoryTracker) Release(_ context.Context, batchID string, leadID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	delete(b.claims, leadID)
	return nil
}

func (t *MemoryTracker) Record(_ context.Context, batchID string, leadID int64, outcome Outcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.progress.Outcomes[leadID] = outcome
	return nil
}

func (t *MemoryTracker) Finish(_ context.Context, batchID string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	finished := at
	b.progress.FinishedAt = &finished
	b.progress.Done = true
	return nil
}

func (t *MemoryTracker) Progress(_ context.Context, batchID string) (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return Progress{}, ErrBatchNotFound
	}
	out := b.progress
	out.Outcomes = make(map[int64]Outcome, len(b.progress.Outcomes))
	for id, o := range b.progress.Outcomes {
		out.Outcomes[id] = o
	}
	return out, nil
}
