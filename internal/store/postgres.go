package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPoolSize = 10

// PostgresStore implements Store using pgxpool (connection-pooled PostgreSQL).
type PostgresStore struct {
	repo
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore with connection pooling.
func NewPostgresStore(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	cfg.MaxConns = defaultPoolSize
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{
		repo: repo{q: pgxQuerier{r: pool}, d: dialectPostgres},
		pool: pool,
	}, nil
}

// Close gracefully shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.repo)
}

// Acquire checks out a connection from the pool.
func (s *PostgresStore) Acquire(ctx context.Context) (Conn, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	pc := &pgxConn{pgxQuerier: pgxQuerier{r: c}, c: c}
	return &conn{repo: repo{q: pc, d: dialectPostgres}, c: pc}, nil
}

type pgxConn struct {
	pgxQuerier
	c *pgxpool.Conn
}

func (c *pgxConn) begin(ctx context.Context) (dbTx, error) {
	tx, err := c.c.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgxTx{pgxQuerier: pgxQuerier{r: tx}, tx: tx}, nil
}

func (c *pgxConn) release() {
	c.c.Release()
}

type pgxTx struct {
	pgxQuerier
	tx pgx.Tx
}

func (t pgxTx) commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTx) rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// discarded reports whether the server has already dropped the transaction.
// pgx closes the connection when a query is interrupted by its context, and
// the server rolls back whatever the dead session had open.
func (t pgxTx) discarded(err error) bool {
	return errors.Is(err, pgx.ErrTxClosed) || t.tx.Conn().IsClosed()
}
