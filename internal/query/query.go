// Package query defines the composable vertex/edge query algebra.
//
// Queries form a tree: a vertex pipe consumes an edge query and an edge
// pipe consumes a vertex query, so arbitrary traversals are expressed by
// nesting. The tree is lowered to SQL by the database package; nothing here
// touches the database.
package query

import (
	"time"

	"github.com/google/uuid"

	"github.com/rohankatakam/braid/internal/models"
)

// VertexQuery selects a set of vertices. Implementations are closed:
// AllVertices, SpecificVertices and VertexPipe are the only variants.
type VertexQuery interface {
	vertexQuery()
}

// EdgeQuery selects a set of edges. Implementations are closed:
// SpecificEdges and EdgePipe are the only variants.
type EdgeQuery interface {
	edgeQuery()
}

// AllVertices selects every vertex with id greater than StartID (or from
// the beginning when nil), ordered by id, capped at Limit.
type AllVertices struct {
	StartID *uuid.UUID
	Limit   uint32
}

func (AllVertices) vertexQuery() {}

// NewAllVertices builds an AllVertices query.
func NewAllVertices(startID *uuid.UUID, limit uint32) AllVertices {
	return AllVertices{StartID: startID, Limit: limit}
}

// SpecificVertices selects exactly the given vertices, ordered by id.
type SpecificVertices struct {
	IDs []uuid.UUID
}

func (SpecificVertices) vertexQuery() {}

// NewSpecificVertices builds a SpecificVertices query.
func NewSpecificVertices(ids ...uuid.UUID) SpecificVertices {
	return SpecificVertices{IDs: ids}
}

// VertexPipe selects the vertices reached from the edges produced by an
// inner edge query, following the chosen endpoint, ordered by id and
// capped at Limit.
type VertexPipe struct {
	Edges     EdgeQuery
	Direction models.Direction
	Limit     uint32
}

func (VertexPipe) vertexQuery() {}

// NewVertexPipe builds a VertexPipe query.
func NewVertexPipe(edges EdgeQuery, direction models.Direction, limit uint32) VertexPipe {
	return VertexPipe{Edges: edges, Direction: direction, Limit: limit}
}

// SpecificEdges selects exactly the edges with the given keys.
type SpecificEdges struct {
	Keys []models.EdgeKey
}

func (SpecificEdges) edgeQuery() {}

// NewSpecificEdges builds a SpecificEdges query.
func NewSpecificEdges(keys ...models.EdgeKey) SpecificEdges {
	return SpecificEdges{Keys: keys}
}

// EdgePipe selects the edges incident to the vertices produced by an inner
// vertex query on the chosen endpoint, optionally filtered by type and by
// an update-timestamp window, ordered newest first and capped at Limit.
//
// High and Low are inclusive bounds; either may be nil.
type EdgePipe struct {
	Vertices   VertexQuery
	Direction  models.Direction
	TypeFilter *models.Type
	High       *time.Time
	Low        *time.Time
	Limit      uint32
}

func (EdgePipe) edgeQuery() {}

// NewEdgePipe builds an EdgePipe query with no filters.
func NewEdgePipe(vertices VertexQuery, direction models.Direction, limit uint32) EdgePipe {
	return EdgePipe{Vertices: vertices, Direction: direction, Limit: limit}
}

// WithTypeFilter restricts the pipe to edges of the given type.
func (q EdgePipe) WithTypeFilter(t models.Type) EdgePipe {
	q.TypeFilter = &t
	return q
}

// WithHigh restricts the pipe to edges updated at or before t.
func (q EdgePipe) WithHigh(t time.Time) EdgePipe {
	q.High = &t
	return q
}

// WithLow restricts the pipe to edges updated at or after t.
func (q EdgePipe) WithLow(t time.Time) EdgePipe {
	q.Low = &t
	return q
}
