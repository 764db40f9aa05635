package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/gtfs"
	"github.com/theoremus-urban-solutions/gtfsrt-ingest/store"
)

// BundleFetcher opens a streaming download of a static bundle.
type BundleFetcher interface {
	FetchBundle(ctx context.Context, category string) (io.ReadCloser, error)
}

// TableStore replaces one table with the rows of a bundle entry.
type TableStore interface {
	LoadTable(ctx context.Context, table string, rows store.RowReader) (int, error)
}

// BundleOptions configures a BundleLoader.
type BundleOptions struct {
	Categories      []string
	ExcludedEntries []string // base names, case-insensitive; default agency.txt
	Concurrency     int      // tables loaded in parallel, default 1
	Logger          *slog.Logger
}

// BundleLoader imports static GTFS bundles table by table.
type BundleLoader struct {
	fetcher     BundleFetcher
	store       TableStore
	categories  []string
	excluded    map[string]struct{}
	concurrency int64
	logger      *slog.Logger
}

// NewBundleLoader wires a bundle loader. A nil ExcludedEntries selects the default
// set; an empty non-nil slice excludes nothing.
func NewBundleLoader(f BundleFetcher, s TableStore, opts BundleOptions) *BundleLoader {
	if opts.ExcludedEntries == nil {
		opts.ExcludedEntries = []string{"agency.txt"}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEntries))
	for _, name := range opts.ExcludedEntries {
		excluded[strings.ToLower(path.Base(name))] = struct{}{}
	}
	return &BundleLoader{
		fetcher:     f,
		store:       s,
		categories:  opts.Categories,
		excluded:    excluded,
		concurrency: int64(opts.Concurrency),
		logger:      opts.Logger.With("component", "bundle_loader"),
	}
}

// accept admits text tables that are not excluded.
func (l *BundleLoader) accept(name string) bool {
	if !gtfs.IsTabular(name) {
		return false
	}
	_, skip := l.excluded[strings.ToLower(path.Base(name))]
	return !skip
}

// LoadAll loads the bundle of every configured category in turn. With no
// categories configured the static URL is fetched once without one.
func (l *BundleLoader) LoadAll(ctx context.Context) Outcome {
	categories := l.categories
	if len(categories) == 0 {
		categories = []string{""}
	}
	var (
		total    int
		firstErr error
	)
	for _, c := range categories {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			break
		}
		out := l.LoadStaticBundle(ctx, c)
		total += out.ItemsProcessed
		if !out.Success && firstErr == nil {
			firstErr = fmt.Errorf("category %q: %w", c, out.Err)
		}
	}
	if firstErr != nil {
		return failed(total, firstErr)
	}
	return succeeded(total)
}

// tableResult is filled in by the worker owning one entry.
type tableResult struct {
	table string
	rows  int
	err   error
}

// LoadStaticBundle downloads the bundle for category and loads each table entry.
// Entries are read in archive order and handed to at most Concurrency workers.
// ItemsProcessed is the number of rows committed; the first failure in dispatch
// order is reported.
func (l *BundleLoader) LoadStaticBundle(ctx context.Context, category string) (out Outcome) {
	start := time.Now()
	log := l.logger.With("cycle_id", uuid.NewString(), "category", category)

	defer func() {
		if r := recover(); r != nil {
			out = failed(out.ItemsProcessed, fmt.Errorf("panic during bundle load: %v", r))
		}
		CyclesTotal.WithLabelValues(pipelineBundle, resultLabel(out.Success)).Inc()
		CycleDuration.WithLabelValues(pipelineBundle).Observe(time.Since(start).Seconds())
		if out.Success {
			log.Info("bundle loaded", "rows", out.ItemsProcessed, "duration", time.Since(start))
		} else {
			log.Error("bundle load failed", "rows", out.ItemsProcessed, "error", out.ErrorMessage)
		}
	}()

	body, err := l.fetcher.FetchBundle(ctx, category)
	if err != nil {
		return failed(0, l.cancelled(ctx, fmt.Errorf("fetch bundle: %w", err)))
	}
	defer body.Close()

	archive, err := gtfs.NewArchiveReader(body)
	if err != nil {
		return failed(0, l.cancelled(ctx, err))
	}
	defer func() {
		if err := archive.Close(); err != nil {
			log.Warn("failed to remove bundle spool file", "error", err)
		}
	}()

	results, demuxErr := l.dispatch(ctx, log, archive)

	total := 0
	var firstErr error
	for _, r := range results {
		total += r.rows
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("table %s: %w", r.table, r.err)
		}
	}
	if firstErr == nil {
		firstErr = demuxErr
	}
	if firstErr != nil {
		return failed(total, l.cancelled(ctx, firstErr))
	}
	return succeeded(total)
}

// dispatch walks the archive and runs one worker per accepted entry. It returns
// once every started worker has finished.
func (l *BundleLoader) dispatch(ctx context.Context, log *slog.Logger, archive *gtfs.ArchiveReader) ([]*tableResult, error) {
	sem := semaphore.NewWeighted(l.concurrency)
	var (
		wg       sync.WaitGroup
		results  []*tableResult
		demuxErr error
	)
	for {
		entry, err := archive.Next(l.accept)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			demuxErr = fmt.Errorf("read archive: %w", err)
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			demuxErr = err
			break
		}
		res := &tableResult{table: entry.Table()}
		results = append(results, res)

		wg.Add(1)
		go func(e *gtfs.ArchiveEntry) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					res.err = fmt.Errorf("panic: %v", r)
				}
			}()
			res.rows, res.err = l.store.LoadTable(ctx, res.table, gtfs.NewTableReader(e.Data))
			if res.err != nil {
				TableLoadErrors.WithLabelValues(res.table).Inc()
				log.Warn("table load rolled back", "table", res.table, "entry", e.Name, "error", res.err)
				return
			}
			RowsLoaded.WithLabelValues(res.table).Add(float64(res.rows))
			log.Debug("table loaded", "table", res.table, "rows", res.rows)
		}(entry)
	}
	wg.Wait()
	return results, demuxErr
}

// cancelled marks err as a cancellation when ctx is done.
func (l *BundleLoader) cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}
