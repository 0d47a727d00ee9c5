// Package store provides database/sql storage for the progression engine.
// SQLite (WAL, immediate transactions) is the default backend; PostgreSQL is
// used with SERIALIZABLE isolation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/ghostline/ghostxp/internal/domain"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the backend.
type Options struct {
	Driver       string
	Dir          string // sqlite: directory holding state.db
	DSN          string // postgres
	MaxOpenConns int
	Logger       *zap.Logger
}

// DB implements domain.Store.
type DB struct {
	db      *sql.DB
	dialect dialect
	log     *zap.Logger
}

var _ domain.Store = (*DB)(nil)

// Open connects to the configured backend and runs migrations.
func Open(ctx context.Context, opts Options) (*DB, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch opts.Driver {
	case "", DriverSQLite:
		d = dialectSQLite
		db, err = openSQLite(opts.Dir)
	case DriverPostgres:
		d = dialectPostgres
		db, err = openPostgres(opts.DSN, opts.MaxOpenConns)
	default:
		return nil, fmt.Errorf("%w: storage driver %q", domain.ErrInvalidArgument, opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d, d.classify(err))
	}

	s := &DB{db: db, dialect: d, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("store opened", zap.Stringer("dialect", d))
	return s, nil
}

// OpenSQLite opens the default SQLite store at dir/state.db.
func OpenSQLite(dir string) (*DB, error) {
	return Open(context.Background(), Options{Driver: DriverSQLite, Dir: dir})
}

func openSQLite(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	return db, nil
}

func openPostgres(dsn string, maxOpen int) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", domain.ErrInvalidArgument)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	return db, nil
}

// Close cleanly shuts down the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *DB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", s.dialect.classify(err))
	}
	return nil
}

// WithinTx runs fn in one transaction, committing only when fn returns nil.
func (s *DB) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions())
	if err != nil {
		return fmt.Errorf("begin: %w", s.dialect.classify(err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&conn{q: tx, d: s.dialect}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", s.dialect.classify(err))
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn binds a queryer to a dialect. Inside WithinTx it is the domain.Tx.
type conn struct {
	q queryer
	d dialect
}

var _ domain.Tx = (*conn)(nil)

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.d.rebind(query), args...)
	if err != nil {
		return nil, c.d.classify(err)
	}
	return res, nil
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.d.rebind(query), args...)
	if err != nil {
		return nil, c.d.classify(err)
	}
	return rows, nil
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// plain returns a conn running outside any transaction.
func (s *DB) plain() *conn {
	return &conn{q: s.db, d: s.dialect}
}
