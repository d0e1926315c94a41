package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// listQuery appends the time window, ordering and paging of opts to a
// SELECT whose positional arguments are already in args.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) window(col string, opts domain.ListOpts) *listQuery {
	if opts.Since != nil {
		fmt.Fprintf(&q.sb, " AND %s >= %s", col, q.arg(*opts.Since))
	}
	if opts.Until != nil {
		fmt.Fprintf(&q.sb, " AND %s <= %s", col, q.arg(*opts.Until))
	}
	return q
}

func (q *listQuery) page(orderBy string, opts domain.ListOpts) *listQuery {
	q.sb.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
	return q
}

func (q *listQuery) String() string { return q.sb.String() }
