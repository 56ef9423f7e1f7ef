package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/rohankatakam/braid/internal/models"
	"github.com/rohankatakam/braid/internal/query"
)

func lowerVertexQuery(t *testing.T, q query.VertexQuery, finalTemplate string) (string, []any) {
	t.Helper()
	b := newCTEBuilder()
	vertexQueryToSQL(q, b)
	return b.intoQueryPayload(finalTemplate, nil)
}

func lowerEdgeQuery(t *testing.T, q query.EdgeQuery, finalTemplate string) (string, []any) {
	t.Helper()
	b := newCTEBuilder()
	edgeQueryToSQL(q, b)
	return b.intoQueryPayload(finalTemplate, nil)
}

func TestLowerAllVertices(t *testing.T) {
	sql, params := lowerVertexQuery(t,
		query.NewAllVertices(nil, 10),
		"SELECT id, type FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices ORDER BY id LIMIT $1) "+
			"SELECT id, type FROM vertices_1",
		sql)
	assert.Equal(t, []any{int64(10)}, params)
}

func TestLowerAllVerticesWithStart(t *testing.T) {
	start := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	sql, params := lowerVertexQuery(t,
		query.NewAllVertices(&start, 5),
		"SELECT id, type FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id > $1 ORDER BY id LIMIT $2) "+
			"SELECT id, type FROM vertices_1",
		sql)
	assert.Equal(t, []any{start, int64(5)}, params)
}

func TestLowerSpecificVertices(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	sql, params := lowerVertexQuery(t,
		query.NewSpecificVertices(a, b),
		"SELECT id, type FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id IN ($1, $2) ORDER BY id) "+
			"SELECT id, type FROM vertices_1",
		sql)
	assert.Equal(t, []any{a, b}, params)
}

func TestLowerSpecificVerticesEmpty(t *testing.T) {
	sql, params := lowerVertexQuery(t,
		query.NewSpecificVertices(),
		"SELECT id, type FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE false) "+
			"SELECT id, type FROM vertices_1",
		sql)
	assert.Empty(t, params)
}

func TestLowerSpecificEdges(t *testing.T) {
	out := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	in := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := models.NewEdgeKey(out, models.MustType("knows"), in)

	sql, params := lowerEdgeQuery(t,
		query.NewSpecificEdges(key),
		"SELECT outbound_id, type, inbound_id, update_timestamp FROM %t")

	assert.Equal(t,
		"WITH edges_1 AS (SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges "+
			"WHERE (outbound_id, type, inbound_id) IN (($1, $2, $3))) "+
			"SELECT outbound_id, type, inbound_id, update_timestamp FROM edges_1",
		sql)
	assert.Equal(t, []any{out, "knows", in}, params)
}

func TestLowerSpecificEdgesEmpty(t *testing.T) {
	sql, params := lowerEdgeQuery(t,
		query.NewSpecificEdges(),
		"SELECT outbound_id, type, inbound_id, update_timestamp FROM %t")

	assert.Equal(t,
		"WITH edges_1 AS (SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges WHERE false) "+
			"SELECT outbound_id, type, inbound_id, update_timestamp FROM edges_1",
		sql)
	assert.Empty(t, params)
}

func TestLowerVertexPipe(t *testing.T) {
	out := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	in := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := models.NewEdgeKey(out, models.MustType("knows"), in)

	for _, tc := range []struct {
		direction models.Direction
		endpoint  string
	}{
		{models.Outbound, "outbound_id"},
		{models.Inbound, "inbound_id"},
	} {
		t.Run(tc.direction.String(), func(t *testing.T) {
			sql, params := lowerVertexQuery(t,
				query.NewVertexPipe(query.NewSpecificEdges(key), tc.direction, 10),
				"SELECT id, type FROM %t")

			assert.Equal(t,
				"WITH edges_1 AS (SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges "+
					"WHERE (outbound_id, type, inbound_id) IN (($1, $2, $3))), "+
					"q_2 AS (SELECT id, type FROM vertices WHERE id IN (SELECT "+tc.endpoint+" FROM edges_1) "+
					"ORDER BY id LIMIT $4) "+
					"SELECT id, type FROM q_2",
				sql)
			assert.Equal(t, []any{out, "knows", in, int64(10)}, params)
		})
	}
}

func TestLowerEdgePipeNoFilters(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	sql, params := lowerEdgeQuery(t,
		query.NewEdgePipe(query.NewSpecificVertices(id), models.Outbound, 10),
		"SELECT outbound_id, type, inbound_id, update_timestamp FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id IN ($1) ORDER BY id), "+
			"q_2 AS (SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges "+
			"WHERE outbound_id IN (SELECT id FROM vertices_1) ORDER BY update_timestamp DESC LIMIT $2) "+
			"SELECT outbound_id, type, inbound_id, update_timestamp FROM q_2",
		sql)
	assert.Equal(t, []any{id, int64(10)}, params)
}

func TestLowerEdgePipeAllFilters(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	high := time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC)
	low := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	q := query.NewEdgePipe(query.NewSpecificVertices(id), models.Inbound, 25).
		WithTypeFilter(models.MustType("knows")).
		WithHigh(high).
		WithLow(low)

	sql, params := lowerEdgeQuery(t, q,
		"SELECT outbound_id, type, inbound_id, update_timestamp FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id IN ($1) ORDER BY id), "+
			"q_2 AS (SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges "+
			"WHERE inbound_id IN (SELECT id FROM vertices_1) "+
			"AND type = $2 AND update_timestamp <= $3 AND update_timestamp >= $4 "+
			"ORDER BY update_timestamp DESC LIMIT $5) "+
			"SELECT outbound_id, type, inbound_id, update_timestamp FROM q_2",
		sql)
	assert.Equal(t, []any{id, "knows", high, low, int64(25)}, params)
}

func TestLowerEdgePipeSingleFilter(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	low := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	q := query.NewEdgePipe(query.NewSpecificVertices(id), models.Outbound, 1).WithLow(low)

	sql, params := lowerEdgeQuery(t, q,
		"SELECT outbound_id, type, inbound_id, update_timestamp FROM %t")

	assert.Contains(t, sql, "WHERE outbound_id IN (SELECT id FROM vertices_1) AND update_timestamp >= $2")
	assert.NotContains(t, sql, "type =")
	assert.NotContains(t, sql, "<=")
	assert.Equal(t, []any{id, low, int64(1)}, params)
}

// A two-hop traversal: vertices -> edges -> vertices. Each step reads the
// previous CTE and the parameter numbering threads straight through.
func TestLowerNestedPipes(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	q := query.NewVertexPipe(
		query.NewEdgePipe(query.NewSpecificVertices(id), models.Outbound, 100),
		models.Inbound,
		10,
	)

	sql, params := lowerVertexQuery(t, q, "SELECT id, type FROM %t")

	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id IN ($1) ORDER BY id), "+
			"q_2 AS (SELECT id, outbound_id, type, inbound_id, update_timestamp FROM edges "+
			"WHERE outbound_id IN (SELECT id FROM vertices_1) ORDER BY update_timestamp DESC LIMIT $2), "+
			"q_3 AS (SELECT id, type FROM vertices WHERE id IN (SELECT inbound_id FROM q_2) ORDER BY id LIMIT $3) "+
			"SELECT id, type FROM q_3",
		sql)
	assert.Equal(t, []any{id, int64(100), int64(10)}, params)
}

// Deletes and metadata reads reuse the lowering unchanged; only the tail
// differs.
func TestLowerDeleteAndMetadataTails(t *testing.T) {
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	sql, params := lowerVertexQuery(t,
		query.NewSpecificVertices(id),
		"DELETE FROM vertices WHERE id IN (SELECT id FROM %t)")
	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id IN ($1) ORDER BY id) "+
			"DELETE FROM vertices WHERE id IN (SELECT id FROM vertices_1)",
		sql)
	assert.Equal(t, []any{id}, params)

	b := newCTEBuilder()
	vertexQueryToSQL(query.NewSpecificVertices(id), b)
	sql, params = b.intoQueryPayload(
		"SELECT owner_id, value FROM vertex_metadata WHERE owner_id IN (SELECT id FROM %t) AND name = %p",
		[]any{"score"})
	assert.Equal(t,
		"WITH vertices_1 AS (SELECT id, type FROM vertices WHERE id IN ($1) ORDER BY id) "+
			"SELECT owner_id, value FROM vertex_metadata WHERE owner_id IN (SELECT id FROM vertices_1) AND name = $2",
		sql)
	assert.Equal(t, []any{id, "score"}, params)
}
