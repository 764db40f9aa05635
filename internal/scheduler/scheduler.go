// Package scheduler drives the ingest pipelines: the delta feed on a fixed
// interval and the static bundle on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/health"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/ingest"
)

// ErrTooManyFailures stops Run after MaxConsecutiveFailures failed delta cycles.
var ErrTooManyFailures = errors.New("too many consecutive failures")

// DeltaRunner runs one delta feed cycle.
type DeltaRunner interface {
	FetchAndStore(ctx context.Context, url string) ingest.Outcome
}

// BundleRunner loads every configured static bundle.
type BundleRunner interface {
	LoadAll(ctx context.Context) ingest.Outcome
}

// Options configures a Scheduler.
type Options struct {
	FeedURL                string
	PollInterval           time.Duration
	BundleSchedule         string // cron spec with seconds; empty disables scheduled loads
	LoadBundleOnStart      bool
	MaxConsecutiveFailures int
	HealthLogInterval      time.Duration // 0 disables the periodic health log
	Logger                 *slog.Logger
}

// Scheduler invokes the pipelines and reports every outcome to the monitor.
type Scheduler struct {
	delta   DeltaRunner
	bundles BundleRunner
	monitor *health.Monitor
	opts    Options
	logger  *slog.Logger

	wg sync.WaitGroup
}

// New validates opts and returns a scheduler. bundles may be nil.
func New(delta DeltaRunner, bundles BundleRunner, monitor *health.Monitor, opts Options) (*Scheduler, error) {
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", opts.PollInterval)
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 5
	}
	if opts.BundleSchedule != "" {
		if _, err := cron.Parse(opts.BundleSchedule); err != nil {
			return nil, fmt.Errorf("invalid bundle schedule %q: %w", opts.BundleSchedule, err)
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		delta:   delta,
		bundles: bundles,
		monitor: monitor,
		opts:    opts,
		logger:  opts.Logger.With("component", "scheduler"),
	}, nil
}

// Run polls the delta feed until ctx is cancelled or too many cycles in a row
// have failed. It waits for an in-flight bundle load before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	if s.bundles != nil {
		// one worker runs the loads; triggers arriving while it is busy coalesce
		trigger := make(chan struct{}, 1)
		if s.opts.LoadBundleOnStart {
			trigger <- struct{}{}
		}
		if s.opts.BundleSchedule != "" {
			c := cron.New()
			err := c.AddFunc(s.opts.BundleSchedule, func() {
				select {
				case trigger <- struct{}{}:
				default:
					s.logger.Warn("bundle load still pending, skipping this run")
				}
			})
			if err != nil {
				return fmt.Errorf("schedule bundle load: %w", err)
			}
			c.Start()
			defer c.Stop()
			s.logger.Info("bundle loads scheduled", "schedule", s.opts.BundleSchedule)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-trigger:
					s.runBundle(ctx)
				}
			}
		}()
	}

	if s.opts.HealthLogInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logHealth(ctx)
		}()
	}

	return s.pollLoop(ctx)
}

func (s *Scheduler) pollLoop(ctx context.Context) error {
	failures := 0
	for {
		start := time.Now()
		out := s.delta.FetchAndStore(ctx, s.opts.FeedURL)
		if ctx.Err() != nil {
			s.logger.Info("polling stopped")
			return nil
		}
		s.monitor.Report(health.PipelineDelta, out)

		if out.Success {
			failures = 0
		} else {
			failures++
			s.logger.Warn("delta cycle failed",
				"consecutive_failures", failures,
				"max_consecutive_failures", s.opts.MaxConsecutiveFailures,
				"error", out.ErrorMessage)
			if failures >= s.opts.MaxConsecutiveFailures {
				s.logger.Error("too many consecutive failures, stopping", "count", failures)
				return fmt.Errorf("%w: %d", ErrTooManyFailures, failures)
			}
		}

		s.logger.Debug("waiting for next cycle", "interval", s.opts.PollInterval, "cycle_duration", time.Since(start))
		select {
		case <-ctx.Done():
			s.logger.Info("polling stopped")
			return nil
		case <-time.After(s.opts.PollInterval):
		}
	}
}

func (s *Scheduler) runBundle(ctx context.Context) {
	out := s.bundles.LoadAll(ctx)
	if ctx.Err() != nil && ingest.IsCancelled(out) {
		return
	}
	s.monitor.Report(health.PipelineBundle, out)
}

func (s *Scheduler) logHealth(ctx context.Context) {
	t := time.NewTicker(s.opts.HealthLogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := s.monitor.Current()
			if !st.Healthy {
				s.logger.Warn("health check failed", "reason", st.LastError)
			} else {
				s.logger.Debug("health check passed", "last_success", st.LastSuccessTime)
			}
		}
	}
}
