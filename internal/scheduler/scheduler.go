// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/metrics"
	"github.com/normanking/alcance/internal/usage"
)

const (
	// DefaultPruneSpec runs the usage prune once a day at midnight.
	DefaultPruneSpec = "@daily"
	// DefaultRetentionDays keeps a week of usage counters.
	DefaultRetentionDays = 7
)

// UsagePruner deletes usage counters for days before the given day.
type UsagePruner interface {
	PruneUsage(ctx context.Context, before string) (int64, error)
}

// Config selects the prune schedule.
type Config struct {
	PruneSpec     string
	RetentionDays int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source used to compute the retention cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler manages maintenance cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	pruner    UsagePruner
	retention int
	now       func() time.Time
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler with the usage prune job registered.
func New(pruner UsagePruner, cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.PruneSpec == "" {
		cfg.PruneSpec = DefaultPruneSpec
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		pruner:    pruner,
		retention: cfg.RetentionDays,
		now:       time.Now,
		log:       log.With().Str("component", "scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.cron.AddFunc(cfg.PruneSpec, s.pruneJob); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule usage prune %q: %w", cfg.PruneSpec, err)
	}
	return s, nil
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("retention_days", s.retention).Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cancel()
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// Cutoff returns the first day that is kept.
func (s *Scheduler) Cutoff() string {
	return usage.Day(s.now().AddDate(0, 0, -s.retention))
}

// PruneUsage deletes counters older than the retention window.
func (s *Scheduler) PruneUsage(ctx context.Context) (int64, error) {
	before := s.Cutoff()
	n, err := s.pruner.PruneUsage(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("prune usage before %s: %w", before, err)
	}
	metrics.UsagePruned.Add(float64(n))
	return n, nil
}

func (s *Scheduler) pruneJob() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()
	n, err := s.PruneUsage(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("usage prune failed")
		return
	}
	s.log.Info().Int64("rows", n).Str("before", s.Cutoff()).Msg("usage counters pruned")
}
