package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// maxBindParams is the PostgreSQL wire protocol limit on parameters per statement.
const maxBindParams = 65535

// inserter accumulates rows for one table and writes them as multi-row INSERTs.
type inserter struct {
	tx      *sql.Tx
	prefix  string
	suffix  string
	width   int
	perStmt int
	flushAt int

	args    []any
	pending int
	written int
}

func newInserter(tx *sql.Tx, table string, columns []string, flushAt int) *inserter {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	perStmt := max(1, min(flushAt, maxBindParams/len(columns)))
	return &inserter{
		tx:      tx,
		prefix:  "INSERT INTO " + pgx.Identifier{table}.Sanitize() + " (" + strings.Join(quoted, ", ") + ") VALUES ",
		width:   len(columns),
		perStmt: perStmt,
		flushAt: max(1, flushAt),
	}
}

// add queues one row and flushes once flushAt rows are pending.
func (in *inserter) add(ctx context.Context, row ...any) error {
	in.args = append(in.args, row...)
	in.pending++
	if in.pending >= in.flushAt {
		return in.flush(ctx)
	}
	return nil
}

// flush writes every pending row, splitting into statements under the parameter limit.
func (in *inserter) flush(ctx context.Context) error {
	off := 0
	for in.pending > 0 {
		n := min(in.pending, in.perStmt)
		end := off + n*in.width
		if _, err := in.tx.ExecContext(ctx, in.statement(n), in.args[off:end]...); err != nil {
			return err
		}
		off = end
		in.pending -= n
		in.written += n
	}
	in.args = in.args[:0]
	return nil
}

func (in *inserter) statement(rows int) string {
	var b strings.Builder
	b.Grow(len(in.prefix) + len(in.suffix) + rows*in.width*6)
	b.WriteString(in.prefix)
	p := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < in.width; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(p))
			p++
		}
		b.WriteByte(')')
	}
	b.WriteString(in.suffix)
	return b.String()
}
