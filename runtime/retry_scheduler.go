// Package runtime holds the in-process machinery that drives the core: delayed retries
// and the background workers. It contains no pairing or relay rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type pendingRetry struct {
	timer *time.Timer
	gen   uint64
}

// RetryScheduler runs delayed callbacks keyed by participant identity.
// Scheduling for an identity replaces its previous retry, so each participant
// has at most one outstanding retry chain.
type RetryScheduler struct {
	mu      sync.Mutex
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	gen     uint64
	pending map[string]pendingRetry // map participant -> retry
}

func NewRetryScheduler(ctx context.Context, log *slog.Logger) *RetryScheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &RetryScheduler{
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]pendingRetry),
	}
}

// Schedule arms fn to run after delay, replacing any pending retry for participantID.
// fn receives the scheduler context, which is canceled by Stop.
func (r *RetryScheduler) Schedule(participantID string, delay time.Duration, fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}
	if previous, ok := r.pending[participantID]; ok {
		previous.timer.Stop()
	}

	r.gen++
	gen := r.gen
	timer := time.AfterFunc(delay, func() {
		if !r.release(participantID, gen) {
			return
		}
		if r.ctx.Err() != nil {
			return
		}
		fn(r.ctx)
	})
	r.pending[participantID] = pendingRetry{timer: timer, gen: gen}
	r.log.Debug("Retry scheduled", "participant", participantID, "delay", delay)
}

// release removes the entry if it still belongs to the firing timer.
// A timer that lost the race against a newer Schedule or a Cancel must not run.
func (r *RetryScheduler) release(participantID string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.pending[participantID]
	if !ok || current.gen != gen {
		return false
	}
	delete(r.pending, participantID)
	return true
}

// Cancel drops the pending retry of participantID and reports whether there was one.
func (r *RetryScheduler) Cancel(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.pending[participantID]
	if !ok {
		return false
	}
	current.timer.Stop()
	delete(r.pending, participantID)
	r.log.Debug("Retry cancelled", "participant", participantID)
	return true
}

func (r *RetryScheduler) Pending(participantID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[participantID]
	return ok
}

func (r *RetryScheduler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stop cancels every pending retry. Later calls to Schedule are ignored.
func (r *RetryScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancel()
	for id, p := range r.pending {
		p.timer.Stop()
		delete(r.pending, id)
	}
}
