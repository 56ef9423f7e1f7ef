package database

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/braid/internal/models"
	"github.com/rohankatakam/braid/internal/query"
)

// vertexQueryToSQL and edgeQueryToSQL lower a query tree into builder
// fragments. They recurse into each other through the pipe variants: the
// leaves scan the physical vertices/edges tables and every pipe reads the
// previous fragment's CTE.
//
// Pipe fragments select from the physical table filtered by ids projected
// out of the previous CTE, rather than projecting the CTE directly. That
// keeps every fragment's column set identical to its table's, so any
// fragment can feed any downstream step.

func vertexQueryToSQL(q query.VertexQuery, b *cteBuilder) {
	switch v := q.(type) {
	case query.AllVertices:
		if v.StartID != nil {
			b.push(
				"SELECT id, type FROM %t WHERE id > %p ORDER BY id LIMIT %p",
				"vertices",
				[]any{*v.StartID, int64(v.Limit)},
			)
		} else {
			b.push(
				"SELECT id, type FROM %t ORDER BY id LIMIT %p",
				"vertices",
				[]any{int64(v.Limit)},
			)
		}

	case query.SpecificVertices:
		if len(v.IDs) == 0 {
			b.push("SELECT id, type FROM %t WHERE false", "vertices", nil)
			return
		}

		placeholders := make([]string, len(v.IDs))
		params := make([]any, len(v.IDs))
		for i, id := range v.IDs {
			placeholders[i] = "%p"
			params[i] = id
		}

		b.push(
			fmt.Sprintf(
				"SELECT id, type FROM %%t WHERE id IN (%s) ORDER BY id",
				strings.Join(placeholders, ", "),
			),
			"vertices",
			params,
		)

	case query.VertexPipe:
		edgeQueryToSQL(v.Edges, b)

		endpoint := "outbound_id"
		if v.Direction == models.Inbound {
			endpoint = "inbound_id"
		}

		b.push(
			fmt.Sprintf(
				"SELECT id, type FROM vertices WHERE id IN (SELECT %s FROM %%t) ORDER BY id LIMIT %%p",
				endpoint,
			),
			"",
			[]any{int64(v.Limit)},
		)

	default:
		panic(fmt.Sprintf("unhandled vertex query variant %T", q))
	}
}

func edgeQueryToSQL(q query.EdgeQuery, b *cteBuilder) {
	switch e := q.(type) {
	case query.SpecificEdges:
		if len(e.Keys) == 0 {
			b.push(
				"SELECT id, outbound_id, type, inbound_id, update_timestamp FROM %t WHERE false",
				"edges",
				nil,
			)
			return
		}

		placeholders := make([]string, len(e.Keys))
		params := make([]any, 0, len(e.Keys)*3)
		for i, key := range e.Keys {
			placeholders[i] = "(%p, %p, %p)"
			params = append(params, key.OutboundID, key.Type.String(), key.InboundID)
		}

		b.push(
			fmt.Sprintf(
				"SELECT id, outbound_id, type, inbound_id, update_timestamp FROM %%t WHERE (outbound_id, type, inbound_id) IN (%s)",
				strings.Join(placeholders, ", "),
			),
			"edges",
			params,
		)

	case query.EdgePipe:
		vertexQueryToSQL(e.Vertices, b)

		var filters []string
		var params []any

		if e.TypeFilter != nil {
			filters = append(filters, "type = %p")
			params = append(params, e.TypeFilter.String())
		}
		if e.High != nil {
			filters = append(filters, "update_timestamp <= %p")
			params = append(params, *e.High)
		}
		if e.Low != nil {
			filters = append(filters, "update_timestamp >= %p")
			params = append(params, *e.Low)
		}
		params = append(params, int64(e.Limit))

		endpoint := "outbound_id"
		if e.Direction == models.Inbound {
			endpoint = "inbound_id"
		}

		where := fmt.Sprintf("%s IN (SELECT id FROM %%t)", endpoint)
		if len(filters) > 0 {
			where += " AND " + strings.Join(filters, " AND ")
		}

		b.push(
			fmt.Sprintf(
				"SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges WHERE %s ORDER BY update_timestamp DESC LIMIT %%p",
				where,
			),
			"",
			params,
		)

	default:
		panic(fmt.Sprintf("unhandled edge query variant %T", q))
	}
}
