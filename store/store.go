package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/marcboeker/go-duckdb"

	"github.com/theoremus-urban-solutions/gtfsrt-ingest/config"
)

// DefaultBatchSize is the number of pending rows that triggers a flush.
const DefaultBatchSize = 999999

// Options tunes a Store.
type Options struct {
	BatchSize int
	Logger    *slog.Logger
}

// Store is the relational sink shared by the delta feed and bundle pipelines.
// Writes to one table are serialised; different tables may be written concurrently.
type Store struct {
	db        *sql.DB
	batchSize int
	locks     sync.Map // table name -> *sync.Mutex
	logger    *slog.Logger
}

// New wraps an open database.
func New(db *sql.DB, opts Options) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		db:        db,
		batchSize: opts.BatchSize,
		logger:    opts.Logger.With("component", "store"),
	}
}

// Open connects to the database described by cfg and verifies the connection.
func Open(ctx context.Context, cfg config.StoreConfig, opts Options) (*Store, error) {
	var db *sql.DB
	switch cfg.Driver {
	case "pgx":
		var err error
		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	case "duckdb":
		connector, err := duckdb.NewConnector(cfg.DSN, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
		}
		db = sql.OpenDB(connector)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return New(db, opts), nil
}

// DB exposes the underlying handle for read-only queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trip (
		trip_id    TEXT PRIMARY KEY,
		route_id   TEXT,
		vehicle_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS vehicle_positions (
		trip_id     TEXT NOT NULL,
		latitude    FLOAT8 NOT NULL CHECK (latitude BETWEEN -90 AND 90),
		longitude   FLOAT8 NOT NULL CHECK (longitude BETWEEN -180 AND 180),
		bearing     REAL,
		speed       REAL,
		"timestamp" BIGINT NOT NULL
	)`,
}

// EnsureSchema creates the delta feed tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &Error{Op: "schema", Err: err}
		}
	}
	return nil
}

// lock acquires the write locks of tables in a fixed order and returns the release func.
func (s *Store) lock(tables ...string) func() {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	held := make([]*sync.Mutex, 0, len(sorted))
	for _, t := range sorted {
		v, _ := s.locks.LoadOrStore(t, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// withTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	var n int
	q := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize()
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
