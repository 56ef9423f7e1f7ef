package database

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// schemaStatements is the datastore's DDL. The named constraints matter:
// the edge upsert and the metadata upserts target them with
// ON CONFLICT ON CONSTRAINT. Cascades flow vertex -> incident edges and
// owner -> metadata so DeleteVertices never leaves dangling rows.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vertices (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		id UUID PRIMARY KEY,
		outbound_id UUID NOT NULL REFERENCES vertices (id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		inbound_id UUID NOT NULL REFERENCES vertices (id) ON DELETE CASCADE,
		update_timestamp TIMESTAMPTZ NOT NULL,
		CONSTRAINT edges_outbound_id_type_inbound_id_ukey UNIQUE (outbound_id, type, inbound_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_edges_inbound_id ON edges (inbound_id)`,
	`CREATE INDEX IF NOT EXISTS ix_edges_update_timestamp ON edges (update_timestamp)`,
	`CREATE TABLE IF NOT EXISTS vertex_metadata (
		owner_id UUID NOT NULL REFERENCES vertices (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		value JSON NOT NULL,
		CONSTRAINT vertex_metadata_pkey PRIMARY KEY (owner_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS edge_metadata (
		owner_id UUID NOT NULL REFERENCES edges (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		value JSON NOT NULL,
		CONSTRAINT edge_metadata_pkey PRIMARY KEY (owner_id, name)
	)`,
}

// CreateSchema applies the datastore DDL to the database at dsn. Every
// statement is idempotent, so re-running against an initialized database
// is a no-op.
func CreateSchema(dsn string, logger *logrus.Logger) error {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}

	logger.WithField("statements", len(schemaStatements)).Info("schema applied")
	return nil
}
