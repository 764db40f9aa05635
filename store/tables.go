package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
)

// RowReader yields records one at a time; the first record is the header.
// *csv.Reader satisfies it.
type RowReader interface {
	Read() ([]string, error)
}

// LoadTable replaces table with the rows read from rows, in one transaction.
// The table is dropped and recreated with one TEXT column per header field. An
// empty source is a no-op. Any read, parse or write failure rolls the load back
// and leaves the previous table untouched. The trip and vehicle position tables
// cannot be loaded over; doing so returns ErrReservedTable.
func (s *Store) LoadTable(ctx context.Context, table string, rows RowReader) (int, error) {
	if reserved(table) {
		return 0, &Error{Op: "load", Table: table, Err: ErrReservedTable}
	}
	header, err := rows.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, &Error{Op: "load", Table: table, Err: fmt.Errorf("%w: header: %w", ErrMalformedRow, err)}
	}
	columns, err := normalizeHeader(header)
	if err != nil {
		return 0, &Error{Op: "load", Table: table, Err: err}
	}

	unlock := s.lock(table)
	defer unlock()

	var loaded int
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := recreateTable(ctx, tx, table, columns); err != nil {
			return err
		}
		in := newInserter(tx, table, columns, s.batchSize)
		line := 1
		for {
			rec, err := rows.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			line++
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedRow, err)
			}
			if len(rec) != len(columns) {
				return fmt.Errorf("%w: record %d has %d fields, header has %d", ErrMalformedRow, line, len(rec), len(columns))
			}
			vals := make([]any, len(rec))
			for i, v := range rec {
				vals[i] = v
			}
			if err := in.add(ctx, vals...); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		if err := in.flush(ctx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		loaded = in.written
		return nil
	})
	if err != nil {
		return 0, &Error{Op: "load", Table: table, Err: err}
	}
	s.logger.Debug("table loaded", "table", table, "rows", loaded, "columns", len(columns))
	return loaded, nil
}

func reserved(table string) bool {
	t := strings.TrimSpace(table)
	return strings.EqualFold(t, tripTable) || strings.EqualFold(t, positionsTable)
}

func normalizeHeader(header []string) ([]string, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedRow)
	}
	seen := make(map[string]struct{}, len(header))
	columns := make([]string, len(header))
	for i, h := range header {
		c := strings.TrimSpace(h)
		if c == "" {
			return nil, fmt.Errorf("%w: header field %d is empty", ErrMalformedRow, i+1)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrMalformedRow, c)
		}
		seen[c] = struct{}{}
		columns[i] = c
	}
	return columns, nil
}

func recreateTable(ctx context.Context, tx *sql.Tx, table string, columns []string) error {
	name := pgx.Identifier{table}.Sanitize()
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+name+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}
