// Package health decides readiness from the database and the policy engine.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultCheckTimeout = 3 * time.Second

// Pinger is satisfied by *sql.DB and *db.Privileged.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is satisfied by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker reports readiness. A nil dependency is skipped.
type Checker struct {
	pinger  Pinger
	policy  PolicyChecker
	timeout time.Duration
}

func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy, timeout: defaultCheckTimeout}
}

// Check runs every dependency check and joins the failures.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var errs []error
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("policy engine: %w", err))
		}
	}
	return errors.Join(errs...)
}
