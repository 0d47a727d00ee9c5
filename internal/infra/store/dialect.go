package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/ghostline/ghostxp/internal/domain"
)

// dialect carries the few differences between SQLite and PostgreSQL.
// Queries are written with ? placeholders and portable DDL.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// txOptions: SQLite already serializes writers through _txlock=immediate.
func (d dialect) txOptions() *sql.TxOptions {
	if d == dialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// classify maps driver errors onto the domain sentinels. Unknown errors are
// returned unchanged.
func (d dialect) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); code & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
		case sqlite3lib.SQLITE_CONSTRAINT:
			switch code {
			case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
				return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
			case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
				return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
			}
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		case sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_IOERR, sqlite3lib.SQLITE_FULL:
			return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
		}
		return err
	}

	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "40001", "40P01", "55P03": // serialization failure, deadlock, lock timeout
			return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		case "23514": // check_violation
			return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		if strings.HasPrefix(pe.Code, "08") || strings.HasPrefix(pe.Code, "57P") {
			return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
		}
		return err
	}

	var ne net.Error
	var ce *pgconn.ConnectError
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &ce) || errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceUnavailable, err)
	}
	return err
}
