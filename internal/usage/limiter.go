// Package usage enforces per-user daily command limits.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/metrics"
	"github.com/normanking/alcance/internal/router"
)

// DayLayout formats the UTC day a counter belongs to.
const DayLayout = "2006-01-02"

// Counter atomically increments a user's counter for a day and returns the
// new value.
type Counter interface {
	Increment(ctx context.Context, userID, day string) (int, error)
}

// Limits holds the daily command allowance per tier. Zero means unlimited.
type Limits struct {
	Eco int
	Pro int
}

// For returns the limit for a tier; unknown tiers get the eco limit.
func (l Limits) For(tier router.Tier) int {
	if tier == router.TierPro {
		return l.Pro
	}
	return l.Eco
}

// Decision is the outcome of a usage check.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
}

// Limiter checks and counts commands against daily limits.
type Limiter struct {
	counter  Counter
	limits   Limits
	failOpen bool
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailClosed denies commands when the counter cannot be reached.
func WithFailClosed() Option {
	return func(l *Limiter) { l.failOpen = false }
}

// WithClock sets the time source used to pick the counter day.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter over counter.
func NewLimiter(counter Counter, limits Limits, opts ...Option) *Limiter {
	l := &Limiter{
		counter:  counter,
		limits:   limits,
		failOpen: true,
		now:      time.Now,
		log:      log.With().Str("component", "usage").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Day returns the counter day for t.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// Check counts one command for userID and reports whether it is within the
// tier's daily limit. Unlimited tiers are not counted. When the counter
// fails the returned error is non-nil and Allowed follows the fail-open
// setting.
func (l *Limiter) Check(ctx context.Context, userID string, tier router.Tier) (Decision, error) {
	limit := l.limits.For(tier)
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	used, err := l.counter.Increment(ctx, userID, Day(l.now()))
	if err != nil {
		l.log.Warn().Err(err).Str("user", userID).Bool("fail_open", l.failOpen).Msg("usage counter unavailable")
		return Decision{Allowed: l.failOpen, Limit: limit}, fmt.Errorf("increment usage: %w", err)
	}

	d := Decision{Allowed: used <= limit, Used: used, Limit: limit}
	if !d.Allowed {
		metrics.UsageDenied.Inc()
		l.log.Info().Str("user", userID).Int("used", used).Int("limit", limit).Msg("daily limit reached")
	}
	return d, nil
}
