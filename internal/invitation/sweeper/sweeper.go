// Package sweeper moves stale pending invitations to expired on a cron schedule.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const sweepTimeout = time.Minute

// Expirer is satisfied by the invitation repository.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// Recorder counts expired invitations. May be nil.
type Recorder interface {
	ObserveInvitationsExpired(n int64)
}

type Sweeper struct {
	repo    Expirer
	metrics Recorder
	log     logrus.FieldLogger
	now     func() time.Time
}

func New(repo Expirer, metrics Recorder, log logrus.FieldLogger) *Sweeper {
	return &Sweeper{repo: repo, metrics: metrics, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Sweep expires every pending invitation whose expiry has passed and returns how many changed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	now := s.now()
	n, err := s.repo.ExpireStale(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("invitation expiry sweep failed")
		return 0, err
	}
	if s.metrics != nil && n > 0 {
		s.metrics.ObserveInvitationsExpired(n)
	}
	s.log.WithFields(logrus.Fields{"expired": n, "as_of": now.Format(time.RFC3339)}).Info("invitation expiry sweep completed")
	return n, nil
}

// Schedule registers the sweep on c under spec (standard cron syntax or descriptors such as "@every 5m").
// Jobs run with ctx so cancelling it aborts an in-flight sweep.
func (s *Sweeper) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		_, _ = s.Sweep(ctx)
	})
}
