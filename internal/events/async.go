package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/circuitpointe-dev/centora-sub011/internal/logging"
)

// Async publishes in the background so callers never wait on the broker.
// Close waits for in-flight publishes before closing the wrapped publisher.
type Async struct {
	next Publisher
	log  logrus.FieldLogger
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsync wraps next. A nil log discards publish errors.
func NewAsync(next Publisher, log logrus.FieldLogger) *Async {
	if log == nil {
		log = logging.Discard()
	}
	return &Async{next: next, log: log}
}

// Publish returns immediately. The event is sent on a context detached from ctx's cancellation.
// Events published after Close are dropped.
func (a *Async) Publish(ctx context.Context, ev *Event) error {
	if a == nil || a.next == nil || ev == nil {
		return nil
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.wg.Add(1)
	a.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer a.wg.Done()
		if err := a.next.Publish(detached, ev); err != nil {
			a.log.WithFields(logrus.Fields{"event_type": ev.Type, "event_id": ev.ID, "org_id": ev.OrgID}).
				WithError(err).Warn("events: publish failed")
		}
	}()
	return nil
}

func (a *Async) Close() error {
	if a == nil || a.next == nil {
		return nil
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
	return a.next.Close()
}
