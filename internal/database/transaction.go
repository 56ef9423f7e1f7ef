package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohankatakam/braid/internal/models"
	"github.com/rohankatakam/braid/internal/query"
)

// Transaction is the unit of work against the graph. It owns one pooled
// connection and the outer database transaction on it for exactly one
// begin..(commit|rollback) cycle; Commit or Rollback releases both as one
// unit. Operations execute sequentially on the single connection.
//
// Mutations that can fail on a conflict (CreateVertex, CreateEdge) run
// inside a savepoint so a rejected insert does not poison the outer
// transaction; they report the conflict as a false return instead of an
// error. Driver-level failures always propagate and leave the transaction
// unusable.
type Transaction struct {
	tx     pgx.Tx
	conn   *pgxpool.Conn
	logger *slog.Logger
	done   bool
}

func newTransaction(ctx context.Context, conn *pgxpool.Conn, logger *slog.Logger) (*Transaction, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Transaction{tx: tx, conn: conn, logger: logger}, nil
}

// Commit commits the outer transaction and releases the connection.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.conn.Release()

	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the outer transaction and releases the connection. It is
// safe to call after Commit, so callers can defer it unconditionally.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.conn.Release()

	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// CreateVertex inserts a vertex. It returns false without error when the
// insert is rejected (duplicate id); the enclosing transaction stays
// usable.
func (t *Transaction) CreateVertex(ctx context.Context, vertex models.Vertex) (bool, error) {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("create vertex savepoint: %w", err)
	}

	_, err = sp.Exec(ctx,
		"INSERT INTO vertices (id, type) VALUES ($1, $2)",
		vertex.ID, vertex.Type.String(),
	)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return false, fmt.Errorf("rollback create vertex savepoint: %w", rbErr)
		}
		if isConstraintViolation(err) {
			t.logger.Debug("vertex insert rejected", "id", vertex.ID, "type", vertex.Type.String())
			return false, nil
		}
		return false, fmt.Errorf("insert vertex: %w", err)
	}

	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("release create vertex savepoint: %w", err)
	}

	t.logger.Debug("vertex created", "id", vertex.ID, "type", vertex.Type.String())
	return true, nil
}

// GetVertices returns the vertices selected by q, ordered as the query
// dictates.
func (t *Transaction) GetVertices(ctx context.Context, q query.VertexQuery) ([]models.Vertex, error) {
	b := newCTEBuilder()
	vertexQueryToSQL(q, b)
	sql, params := b.intoQueryPayload("SELECT id, type FROM %t", nil)

	rows, err := t.tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query vertices: %w", err)
	}
	defer rows.Close()

	var vertices []models.Vertex
	for rows.Next() {
		var id uuid.UUID
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, fmt.Errorf("scan vertex row: %w", err)
		}
		vt, err := models.NewType(label)
		if err != nil {
			return nil, fmt.Errorf("stored vertex %s has bad type: %w", id, err)
		}
		vertices = append(vertices, models.NewVertexWithID(id, vt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read vertex rows: %w", err)
	}

	return vertices, nil
}

// DeleteVertices removes the vertices selected by q. Incident edges and
// metadata go with them through the schema's cascades.
func (t *Transaction) DeleteVertices(ctx context.Context, q query.VertexQuery) error {
	b := newCTEBuilder()
	vertexQueryToSQL(q, b)
	sql, params := b.intoQueryPayload("DELETE FROM vertices WHERE id IN (SELECT id FROM %t)", nil)

	tag, err := t.tx.Exec(ctx, sql, params...)
	if err != nil {
		return fmt.Errorf("delete vertices: %w", err)
	}

	t.logger.Debug("vertices deleted", "count", tag.RowsAffected())
	return nil
}

// GetVertexCount returns the total number of vertices.
func (t *Transaction) GetVertexCount(ctx context.Context) (uint64, error) {
	var count int64
	if err := t.tx.QueryRow(ctx, "SELECT COUNT(*) FROM vertices").Scan(&count); err != nil {
		return 0, fmt.Errorf("count vertices: %w", err)
	}
	return uint64(count), nil
}

// CreateEdge upserts the edge identified by key, refreshing its update
// timestamp whether the row is inserted or already present. It returns
// false without error when the write is rejected (for example a missing
// endpoint vertex); the enclosing transaction stays usable.
func (t *Transaction) CreateEdge(ctx context.Context, key models.EdgeKey) (bool, error) {
	id := models.GenerateID()

	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("create edge savepoint: %w", err)
	}

	_, err = sp.Exec(ctx, `
		INSERT INTO edges (id, outbound_id, type, inbound_id, update_timestamp)
		VALUES ($1, $2, $3, $4, CLOCK_TIMESTAMP())
		ON CONFLICT ON CONSTRAINT edges_outbound_id_type_inbound_id_ukey
		DO UPDATE SET update_timestamp = CLOCK_TIMESTAMP()
	`, id, key.OutboundID, key.Type.String(), key.InboundID)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return false, fmt.Errorf("rollback create edge savepoint: %w", rbErr)
		}
		if isConstraintViolation(err) {
			t.logger.Debug("edge upsert rejected",
				"outbound_id", key.OutboundID, "type", key.Type.String(), "inbound_id", key.InboundID)
			return false, nil
		}
		return false, fmt.Errorf("upsert edge: %w", err)
	}

	if err := sp.Commit(ctx); err != nil {
		return false, fmt.Errorf("release create edge savepoint: %w", err)
	}

	t.logger.Debug("edge upserted",
		"outbound_id", key.OutboundID, "type", key.Type.String(), "inbound_id", key.InboundID)
	return true, nil
}

// GetEdges returns the edges selected by q, ordered as the query dictates.
func (t *Transaction) GetEdges(ctx context.Context, q query.EdgeQuery) ([]models.Edge, error) {
	b := newCTEBuilder()
	edgeQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(
		"SELECT outbound_id, type, inbound_id, update_timestamp FROM %t", nil)

	rows, err := t.tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []models.Edge
	for rows.Next() {
		var outboundID, inboundID uuid.UUID
		var label string
		var updated time.Time
		if err := rows.Scan(&outboundID, &label, &inboundID, &updated); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		et, err := models.NewType(label)
		if err != nil {
			return nil, fmt.Errorf("stored edge %s->%s has bad type: %w", outboundID, inboundID, err)
		}
		edges = append(edges, models.NewEdge(models.NewEdgeKey(outboundID, et, inboundID), updated))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read edge rows: %w", err)
	}

	return edges, nil
}

// DeleteEdges removes the edges selected by q along with their metadata.
func (t *Transaction) DeleteEdges(ctx context.Context, q query.EdgeQuery) error {
	b := newCTEBuilder()
	edgeQueryToSQL(q, b)
	sql, params := b.intoQueryPayload("DELETE FROM edges WHERE id IN (SELECT id FROM %t)", nil)

	tag, err := t.tx.Exec(ctx, sql, params...)
	if err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}

	t.logger.Debug("edges deleted", "count", tag.RowsAffected())
	return nil
}

// GetEdgeCount counts the edges incident to id on the chosen endpoint,
// optionally restricted to one type.
func (t *Transaction) GetEdgeCount(ctx context.Context, id uuid.UUID, typeFilter *models.Type, direction models.Direction) (uint64, error) {
	endpoint := "outbound_id"
	if direction == models.Inbound {
		endpoint = "inbound_id"
	}

	var count int64
	var err error
	if typeFilter != nil {
		err = t.tx.QueryRow(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM edges WHERE %s = $1 AND type = $2", endpoint),
			id, typeFilter.String(),
		).Scan(&count)
	} else {
		err = t.tx.QueryRow(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM edges WHERE %s = $1", endpoint),
			id,
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count edges: %w", err)
	}

	return uint64(count), nil
}

// GetVertexMetadata returns the named metadata entries owned by the
// vertices selected by q.
func (t *Transaction) GetVertexMetadata(ctx context.Context, q query.VertexQuery, name string) ([]models.VertexMetadata, error) {
	b := newCTEBuilder()
	vertexQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(
		"SELECT owner_id, value FROM vertex_metadata WHERE owner_id IN (SELECT id FROM %t) AND name = %p",
		[]any{name},
	)

	rows, err := t.tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query vertex metadata: %w", err)
	}
	defer rows.Close()

	var metadata []models.VertexMetadata
	for rows.Next() {
		var ownerID uuid.UUID
		var value json.RawMessage
		if err := rows.Scan(&ownerID, &value); err != nil {
			return nil, fmt.Errorf("scan vertex metadata row: %w", err)
		}
		metadata = append(metadata, models.VertexMetadata{OwnerID: ownerID, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read vertex metadata rows: %w", err)
	}

	return metadata, nil
}

// SetVertexMetadata upserts the named metadata value on every vertex
// selected by q.
func (t *Transaction) SetVertexMetadata(ctx context.Context, q query.VertexQuery, name string, value json.RawMessage) error {
	b := newCTEBuilder()
	vertexQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(`
		INSERT INTO vertex_metadata (owner_id, name, value)
		SELECT id, %p, %p FROM %t
		ON CONFLICT ON CONSTRAINT vertex_metadata_pkey
		DO UPDATE SET value = %p
	`, []any{name, value, value})

	if _, err := t.tx.Exec(ctx, sql, params...); err != nil {
		return fmt.Errorf("set vertex metadata: %w", err)
	}
	return nil
}

// DeleteVertexMetadata removes the named metadata from every vertex
// selected by q.
func (t *Transaction) DeleteVertexMetadata(ctx context.Context, q query.VertexQuery, name string) error {
	b := newCTEBuilder()
	vertexQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(
		"DELETE FROM vertex_metadata WHERE owner_id IN (SELECT id FROM %t) AND name = %p",
		[]any{name},
	)

	if _, err := t.tx.Exec(ctx, sql, params...); err != nil {
		return fmt.Errorf("delete vertex metadata: %w", err)
	}
	return nil
}

// GetEdgeMetadata returns the named metadata entries owned by the edges
// selected by q, each reported with the owning edge's key.
func (t *Transaction) GetEdgeMetadata(ctx context.Context, q query.EdgeQuery, name string) ([]models.EdgeMetadata, error) {
	b := newCTEBuilder()
	edgeQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(`
		SELECT edges.outbound_id, edges.type, edges.inbound_id, edge_metadata.value
		FROM edge_metadata JOIN edges ON edge_metadata.owner_id = edges.id
		WHERE owner_id IN (SELECT id FROM %t) AND name = %p
	`, []any{name})

	rows, err := t.tx.Query(ctx, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("query edge metadata: %w", err)
	}
	defer rows.Close()

	var metadata []models.EdgeMetadata
	for rows.Next() {
		var outboundID, inboundID uuid.UUID
		var label string
		var value json.RawMessage
		if err := rows.Scan(&outboundID, &label, &inboundID, &value); err != nil {
			return nil, fmt.Errorf("scan edge metadata row: %w", err)
		}
		et, err := models.NewType(label)
		if err != nil {
			return nil, fmt.Errorf("stored edge %s->%s has bad type: %w", outboundID, inboundID, err)
		}
		metadata = append(metadata, models.EdgeMetadata{
			Key:   models.NewEdgeKey(outboundID, et, inboundID),
			Value: value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read edge metadata rows: %w", err)
	}

	return metadata, nil
}

// SetEdgeMetadata upserts the named metadata value on every edge selected
// by q, keyed by the edge's surrogate id.
func (t *Transaction) SetEdgeMetadata(ctx context.Context, q query.EdgeQuery, name string, value json.RawMessage) error {
	b := newCTEBuilder()
	edgeQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(`
		INSERT INTO edge_metadata (owner_id, name, value)
		SELECT id, %p, %p FROM %t
		ON CONFLICT ON CONSTRAINT edge_metadata_pkey
		DO UPDATE SET value = %p
	`, []any{name, value, value})

	if _, err := t.tx.Exec(ctx, sql, params...); err != nil {
		return fmt.Errorf("set edge metadata: %w", err)
	}
	return nil
}

// DeleteEdgeMetadata removes the named metadata from every edge selected
// by q.
func (t *Transaction) DeleteEdgeMetadata(ctx context.Context, q query.EdgeQuery, name string) error {
	b := newCTEBuilder()
	edgeQueryToSQL(q, b)
	sql, params := b.intoQueryPayload(
		"DELETE FROM edge_metadata WHERE owner_id IN (SELECT id FROM %t) AND name = %p",
		[]any{name},
	)

	if _, err := t.tx.Exec(ctx, sql, params...); err != nil {
		return fmt.Errorf("delete edge metadata: %w", err)
	}
	return nil
}

// isConstraintViolation reports whether err is a server-side integrity
// constraint rejection (SQLSTATE class 23), the recoverable conflict case
// for the create operations.
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
