package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfsrt"
)

// Fetcher performs one download attempt of the delta feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FeedDecoder turns a raw payload into a DeltaBatch.
type FeedDecoder interface {
	Decode(b []byte) (gtfsrt.DeltaBatch, error)
}

// PositionStore commits a decoded batch atomically.
type PositionStore interface {
	UpsertVehiclePositions(ctx context.Context, batch gtfsrt.DeltaBatch) error
}

// PollerOptions tunes the retry behaviour of a Poller.
type PollerOptions struct {
	MaxRetryAttempts int           // default 3
	RetryDelay       time.Duration // default 5s, negative retries immediately
	Logger           *slog.Logger
}

// Poller runs the fetch, decode and store cycle of the delta feed.
type Poller struct {
	fetcher     Fetcher
	decoder     FeedDecoder
	store       PositionStore
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewPoller wires a poller. Zero options select the defaults.
func NewPoller(f Fetcher, d FeedDecoder, s PositionStore, opts PollerOptions) *Poller {
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		fetcher:     f,
		decoder:     d,
		store:       s,
		maxAttempts: opts.MaxRetryAttempts,
		retryDelay:  opts.RetryDelay,
		logger:      opts.Logger.With("component", "poller"),
	}
}

// FetchAndStore runs one cycle against url. Every failure, including a panic in a
// collaborator, is reported through the returned Outcome.
func (p *Poller) FetchAndStore(ctx context.Context, url string) (out Outcome) {
	start := time.Now()
	log := p.logger.With("cycle_id", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			out = failed(0, fmt.Errorf("panic during delta cycle: %v", r))
		}
		CyclesTotal.WithLabelValues(pipelineDelta, resultLabel(out.Success)).Inc()
		CycleDuration.WithLabelValues(pipelineDelta).Observe(time.Since(start).Seconds())
		if out.Success {
			log.Info("delta cycle completed", "records", out.ItemsProcessed, "duration", time.Since(start))
		} else {
			log.Error("delta cycle failed", "error", out.ErrorMessage, "duration", time.Since(start))
		}
	}()

	raw, err := p.fetch(ctx, log, url)
	if err != nil {
		return failed(0, err)
	}

	batch, err := p.decoder.Decode(raw)
	if err != nil {
		return failed(0, err)
	}
	if batch.Skipped > 0 {
		RecordsSkipped.Add(float64(batch.Skipped))
		log.Debug("skipped incomplete entities", "skipped", batch.Skipped)
	}

	if err := p.store.UpsertVehiclePositions(ctx, batch); err != nil {
		if ctx.Err() != nil {
			return failed(0, fmt.Errorf("%w: %w", ErrCancelled, err))
		}
		return failed(0, err)
	}
	RecordsStored.Add(float64(batch.Len()))
	return succeeded(batch.Len())
}

// fetch retries transient failures up to maxAttempts, waiting retryDelay between them.
func (p *Poller) fetch(ctx context.Context, log *slog.Logger, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		raw, err := p.fetcher.Fetch(ctx, url)
		if err == nil {
			FetchAttempts.WithLabelValues("success").Inc()
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		FetchAttempts.WithLabelValues("failure").Inc()
		if !gtfsrt.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		log.Warn("fetch attempt failed", "attempt", attempt, "max_attempts", p.maxAttempts, "error", err)
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-time.After(p.retryDelay):
		}
	}
	return nil, &gtfsrt.FetchExhaustedError{Attempts: p.maxAttempts, LastErr: lastErr}
}

// IsCancelled reports whether an outcome ended because its context was cancelled.
func IsCancelled(o Outcome) bool {
	return errors.Is(o.Err, ErrCancelled)
}
