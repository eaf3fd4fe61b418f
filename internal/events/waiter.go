package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"firefly/internal/metrics"
	"firefly/internal/models"
)

// DeployWaiter is a registration for the finalization of one deploy. It is removed from
// the bus exactly once: by the dispatcher when the deploy finalizes, or by Cancel.
type DeployWaiter struct {
	bus  *Bus
	id   models.DeployID
	key  string
	done chan struct{}
	once sync.Once
}

// Watch registers a waiter for id. Register before submitting or proposing whatever
// finalizes the deploy, then call Wait or Cancel.
func (b *Bus) Watch(id models.DeployID) *DeployWaiter {
	w := &DeployWaiter{
		bus:  b,
		id:   id,
		key:  uuid.Must(uuid.NewV7()).String(),
		done: make(chan struct{}),
	}

	b.deploys.Upsert(string(id), cmap.ConcurrentMap[string, chan struct{}]{},
		func(exists bool, waiters, _ cmap.ConcurrentMap[string, chan struct{}]) cmap.ConcurrentMap[string, chan struct{}] {
			if !exists {
				waiters = cmap.New[chan struct{}]()
			}
			waiters.Set(w.key, w.done)
			return waiters
		})

	metrics.ActiveDeployWaiters.Inc()
	return w
}

// WaitForDeploy waits up to maxWait for id to finalize. It reports whether the deploy
// finalized in time; a timeout or a cancelled ctx yields false.
func (b *Bus) WaitForDeploy(ctx context.Context, id models.DeployID, maxWait time.Duration) bool {
	return b.Watch(id).Wait(ctx, maxWait)
}

// Done is closed when the deploy finalizes
func (w *DeployWaiter) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the deploy finalizes, maxWait elapses or ctx is done. The waiter is
// deregistered on return whatever the outcome.
func (w *DeployWaiter) Wait(ctx context.Context, maxWait time.Duration) bool {
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	deregister := true
	defer func() {
		if deregister {
			w.Cancel()
		}
	}()

	select {
	case <-w.done:
	case <-timer.C:
	case <-ctx.Done():
	}

	// finalization wins a tie with the timer
	select {
	case <-w.done:
		deregister = false
		w.release("finalized")
		return true
	default:
		return false
	}
}

// Cancel deregisters the waiter. If it was the last one for the deploy id, the id is
// removed too. Safe to call more than once and after Wait.
func (w *DeployWaiter) Cancel() {
	w.once.Do(func() {
		w.bus.deploys.RemoveCb(string(w.id),
			func(_ string, waiters cmap.ConcurrentMap[string, chan struct{}], exists bool) bool {
				if !exists {
					return false
				}
				waiters.Remove(w.key)
				return waiters.IsEmpty()
			})
		w.finish("abandoned")
	})
}

// release accounts for a waiter the dispatcher already removed
func (w *DeployWaiter) release(outcome string) {
	w.once.Do(func() { w.finish(outcome) })
}

func (w *DeployWaiter) finish(outcome string) {
	metrics.ActiveDeployWaiters.Dec()
	metrics.DeployWaits.WithLabelValues(outcome).Inc()
}
