// Package models defines the domain types stored by the graph datastore:
// vertices, edges, their identifying keys, and attached metadata.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxTypeLength = 255

// Type is a validated label attached to vertices and edges.
//
// Valid types are non-empty, at most 255 characters, and restricted to
// letters, digits, dashes and underscores. Validation happens at
// construction so the database layer never sees a malformed label.
type Type struct {
	value string
}

// NewType validates s and returns it as a Type.
func NewType(s string) (Type, error) {
	if s == "" {
		return Type{}, fmt.Errorf("type must not be empty")
	}
	if len(s) > maxTypeLength {
		return Type{}, fmt.Errorf("type exceeds %d characters", maxTypeLength)
	}
	for _, c := range s {
		if !isTypeChar(c) {
			return Type{}, fmt.Errorf("type contains invalid character %q", c)
		}
	}
	return Type{value: s}, nil
}

// MustType is NewType that panics on invalid input. Intended for constants
// and test fixtures.
func MustType(s string) Type {
	t, err := NewType(s)
	if err != nil {
		panic(err)
	}
	return t
}

func isTypeChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// String returns the raw label.
func (t Type) String() string { return t.value }

// Direction selects one endpoint of a directed edge. Outbound is the
// source, inbound the destination.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Vertex is a node in the graph.
type Vertex struct {
	ID   uuid.UUID
	Type Type
}

// NewVertex creates a vertex with a freshly generated id.
//
// Ids are version 1 UUIDs so that creation order roughly matches id order,
// which keeps id-ordered scans returning older vertices first.
func NewVertex(t Type) Vertex {
	return Vertex{ID: GenerateID(), Type: t}
}

// NewVertexWithID creates a vertex with a caller-chosen id.
func NewVertexWithID(id uuid.UUID, t Type) Vertex {
	return Vertex{ID: id, Type: t}
}

// EdgeKey identifies an edge by its (outbound, type, inbound) triple.
// The triple is unique; the surrogate row id exists only to link metadata.
type EdgeKey struct {
	OutboundID uuid.UUID
	Type       Type
	InboundID  uuid.UUID
}

// NewEdgeKey builds an edge key.
func NewEdgeKey(outboundID uuid.UUID, t Type, inboundID uuid.UUID) EdgeKey {
	return EdgeKey{OutboundID: outboundID, Type: t, InboundID: inboundID}
}

// Reversed returns the key with its endpoints swapped.
func (k EdgeKey) Reversed() EdgeKey {
	return EdgeKey{OutboundID: k.InboundID, Type: k.Type, InboundID: k.OutboundID}
}

// Edge is a directed, typed connection between two vertices.
// UpdateTimestamp is the server wall-clock time of the most recent
// create-or-update, always in UTC.
type Edge struct {
	Key             EdgeKey
	UpdateTimestamp time.Time
}

// NewEdge builds an edge from its key and timestamp.
func NewEdge(key EdgeKey, updateTimestamp time.Time) Edge {
	return Edge{Key: key, UpdateTimestamp: updateTimestamp.UTC()}
}

// VertexMetadata is a named JSON value owned by a vertex.
type VertexMetadata struct {
	OwnerID uuid.UUID
	Value   json.RawMessage
}

// EdgeMetadata is a named JSON value owned by an edge, reported with the
// owning edge's key rather than its surrogate id.
type EdgeMetadata struct {
	Key   EdgeKey
	Value json.RawMessage
}

// GenerateID returns a fresh version 1 UUID, falling back to random when
// the host cannot supply hardware-derived bits.
func GenerateID() uuid.UUID {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.New()
	}
	return id
}
