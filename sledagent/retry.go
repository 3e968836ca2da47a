package sledagent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sledctl/sledctl/instance"
	"golang.org/x/sync/errgroup"
)

// retryInterval is the fixed short delay between retry sweeps. The
// simulated model has no need for backoff.
const retryInterval = 250 * time.Millisecond

// retryQueue holds instance-updated notifications that failed delivery
// to the central controller, for at-least-once retry. Entries are
// keyed by instance id; a later failure for the same id simply
// overwrites the pending state, since only the latest observed state
// is worth redelivering.
type retryQueue struct {
	attempt func(ctx context.Context, id uuid.UUID, state instance.RuntimeState) error

	mu      sync.Mutex
	pending map[uuid.UUID]instance.RuntimeState
}

func newRetryQueue(attempt func(ctx context.Context, id uuid.UUID, state instance.RuntimeState) error) *retryQueue {
	return &retryQueue{
		attempt: attempt,
		pending: make(map[uuid.UUID]instance.RuntimeState),
	}
}

func (q *retryQueue) enqueue(id uuid.UUID, state instance.RuntimeState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[id] = state
}

// start launches the sweep goroutine that retries every entry in
// pending on each tick, until ctx is cancelled.
func (q *retryQueue) start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(retryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.sweep(ctx)
			}
		}
	}()
}

// sweep attempts redelivery of every pending entry concurrently,
// removing each that succeeds. Failures across the sweep are
// aggregated into a single multierror for one log line instead of one
// per failed instance.
func (q *retryQueue) sweep(ctx context.Context) {
	q.mu.Lock()
	batch := make(map[uuid.UUID]instance.RuntimeState, len(q.pending))
	for id, st := range q.pending {
		batch[id] = st
	}
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var mu sync.Mutex
	var failures error
	g, gctx := errgroup.WithContext(ctx)

	for id, st := range batch {
		id, st := id, st
		g.Go(func() error {
			if err := q.attempt(gctx, id, st); err != nil {
				mu.Lock()
				failures = multierror.Append(failures, err)
				mu.Unlock()
				return nil
			}
			q.mu.Lock()
			if cur, ok := q.pending[id]; ok && cur.Gen == st.Gen {
				delete(q.pending, id)
			}
			q.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if failures != nil {
		slog.Debug("retry sweep had failures", "err", failures)
	}
}
