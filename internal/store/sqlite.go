package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore implements Store on an embedded SQLite database file. It is
// meant for single-node deployments and tests.
type SQLiteStore struct {
	repo
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
// SQLite allows a single writer, so the pool is capped at one connection and
// callers queue on Acquire.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &SQLiteStore{
		repo: repo{q: sqlQuerier{r: db}, d: dialectSQLite},
		db:   db,
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.repo)
}

// Acquire checks out the database connection.
func (s *SQLiteStore) Acquire(ctx context.Context) (Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	sc := &sqlConn{sqlQuerier: sqlQuerier{r: c}, c: c}
	return &conn{repo: repo{q: sc, d: dialectSQLite}, c: sc}, nil
}

type sqlConn struct {
	sqlQuerier
	c *sql.Conn
}

func (c *sqlConn) begin(ctx context.Context) (dbTx, error) {
	tx, err := c.c.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{sqlQuerier: sqlQuerier{r: tx}, tx: tx}, nil
}

func (c *sqlConn) release() {
	_ = c.c.Close()
}

type sqlTx struct {
	sqlQuerier
	tx *sql.Tx
}

func (t sqlTx) commit(context.Context) error   { return t.tx.Commit() }
func (t sqlTx) rollback(context.Context) error { return t.tx.Rollback() }

// discarded reports whether database/sql already rolled the transaction back,
// which it does when the context passed to BeginTx or a statement is done.
func (t sqlTx) discarded(err error) bool { return errors.Is(err, sql.ErrTxDone) }
