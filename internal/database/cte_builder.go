package database

import (
	"fmt"
	"strings"
)

// cteBuilder accumulates parameterized query fragments and materializes
// them into a single statement of chained common table expressions.
//
// Fragment templates use two local placeholders:
//
//	%p - bind the next parameter from the fragment's parameter list
//	%t - the name of the previous fragment's CTE; in the first fragment it
//	     resolves to that fragment's physical table instead
//
// The builder owns placeholder numbering: at finalization every %p across
// all fragments is rewritten to the next native positional placeholder
// ($1, $2, ...) and the per-fragment parameter lists are concatenated into
// one vector in the same order.
//
// Misuse (placeholder/parameter count mismatch, %t with nothing to refer
// to, finalizing an empty builder) is a programmer error and panics.
type cteBuilder struct {
	fragments []cteFragment
	seq       int
}

type cteFragment struct {
	// cteName is the generated unique name, empty only for the tail.
	cteName string
	// table is the physical table a leaf fragment scans; %t in the first
	// fragment resolves to it.
	table    string
	template string
	params   []any
}

func newCTEBuilder() *cteBuilder {
	return &cteBuilder{}
}

// push appends one fragment. table names the physical table for leaf
// fragments and doubles as the base of the generated CTE name; pipe
// fragments pass "".
func (b *cteBuilder) push(template, table string, params []any) {
	b.seq++
	base := table
	if base == "" {
		base = "q"
	}
	b.fragments = append(b.fragments, cteFragment{
		cteName:  fmt.Sprintf("%s_%d", base, b.seq),
		table:    table,
		template: template,
		params:   params,
	})
}

// intoQueryPayload appends the final projection fragment and materializes
// the chain, returning the SQL string and its parameter vector.
func (b *cteBuilder) intoQueryPayload(finalTemplate string, extraParams []any) (string, []any) {
	if len(b.fragments) == 0 {
		panic("cte builder: finalized with no fragments")
	}

	b.fragments = append(b.fragments, cteFragment{
		template: finalTemplate,
		params:   extraParams,
	})

	var sb strings.Builder
	var params []any
	next := 1

	for i, frag := range b.fragments {
		tail := i == len(b.fragments)-1

		prev := ""
		switch {
		case i == 0:
			prev = frag.table
		default:
			prev = b.fragments[i-1].cteName
		}

		body, used := substitute(frag, prev, &next)
		if used != len(frag.params) {
			panic(fmt.Sprintf("cte builder: fragment %d binds %d placeholders but has %d params", i, used, len(frag.params)))
		}
		params = append(params, frag.params...)

		switch {
		case tail && i == 0:
			// A tail-only payload never happens in practice: lowering
			// always pushes at least one fragment first.
			sb.WriteString(body)
		case tail:
			sb.WriteString(" ")
			sb.WriteString(body)
		case i == 0:
			sb.WriteString("WITH ")
			sb.WriteString(frag.cteName)
			sb.WriteString(" AS (")
			sb.WriteString(body)
			sb.WriteString(")")
		default:
			sb.WriteString(", ")
			sb.WriteString(frag.cteName)
			sb.WriteString(" AS (")
			sb.WriteString(body)
			sb.WriteString(")")
		}
	}

	return sb.String(), params
}

// substitute rewrites one fragment template, replacing %t with prev and
// each %p with the next positional placeholder starting at *next. It
// returns the rewritten body and how many %p it consumed.
func substitute(frag cteFragment, prev string, next *int) (string, int) {
	var sb strings.Builder
	used := 0
	t := frag.template

	for {
		i := strings.IndexByte(t, '%')
		if i < 0 || i == len(t)-1 {
			sb.WriteString(t)
			break
		}

		sb.WriteString(t[:i])
		switch t[i+1] {
		case 'p':
			sb.WriteString(fmt.Sprintf("$%d", *next))
			*next++
			used++
		case 't':
			if prev == "" {
				panic("cte builder: %t used with no preceding fragment or table")
			}
			sb.WriteString(prev)
		default:
			sb.WriteByte('%')
			sb.WriteByte(t[i+1])
		}
		t = t[i+2:]
	}

	return sb.String(), used
}
