package database

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rohankatakam/braid/internal/config"
	"github.com/rohankatakam/braid/internal/errors"
)

// maxDefaultPoolSize caps the CPU-derived pool default so a large host
// does not exhaust the server's connection slots.
const maxDefaultPoolSize = 128

// Datastore is a graph datastore backed by a PostgreSQL connection pool.
// It is safe for concurrent use; each Transaction checks out its own
// connection and runs independently of the others.
type Datastore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects a datastore using cfg. It fails fast when the database is
// unreachable.
func New(ctx context.Context, cfg *config.Config) (*Datastore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.DatabaseError(err, "parse connection string")
	}
	poolCfg.MaxConns = poolSize(cfg.PoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.DatabaseError(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.DatabaseError(err, "connect to postgres")
	}

	logger := slog.Default().With("component", "datastore")
	logger.Info("datastore connected", "max_conns", poolCfg.MaxConns)

	return &Datastore{pool: pool, logger: logger}, nil
}

// poolSize resolves the configured pool size, defaulting to the CPU count
// capped at maxDefaultPoolSize.
func poolSize(configured int32) int32 {
	if configured > 0 {
		return configured
	}
	n := int32(runtime.NumCPU())
	if n > maxDefaultPoolSize {
		return maxDefaultPoolSize
	}
	return n
}

// Transaction checks a connection out of the pool and begins a new unit of
// work on it. The caller must finish with Commit or Rollback; deferring
// Rollback unconditionally is the expected pattern.
func (d *Datastore) Transaction(ctx context.Context) (*Transaction, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.DatabaseError(err, "acquire connection")
	}
	return newTransaction(ctx, conn, d.logger)
}

// VertexCount reports the total vertex count outside any transaction.
func (d *Datastore) VertexCount(ctx context.Context) (uint64, error) {
	var count int64
	if err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM vertices").Scan(&count); err != nil {
		return 0, errors.DatabaseError(err, "count vertices")
	}
	return uint64(count), nil
}

// EdgeCount reports the total edge count outside any transaction.
func (d *Datastore) EdgeCount(ctx context.Context) (uint64, error) {
	var count int64
	if err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM edges").Scan(&count); err != nil {
		return 0, errors.DatabaseError(err, "count edges")
	}
	return uint64(count), nil
}

// HealthCheck verifies connectivity to the database.
func (d *Datastore) HealthCheck(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return errors.DatabaseError(err, "health check")
	}
	return nil
}

// Close drains the connection pool.
func (d *Datastore) Close() {
	d.pool.Close()
	d.logger.Info("datastore closed")
}
