package store

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrQueryTimeout is returned when a statement exceeds its per-query timeout.
	ErrQueryTimeout = errors.New("store: query timeout")
	// ErrDatabaseNotFound is returned by drivers asked to open a database
	// that has not been provisioned.
	ErrDatabaseNotFound = errors.New("store: database not found")
)

// ViolationKind classifies an integrity constraint failure.
type ViolationKind int

const (
	UniqueViolation ViolationKind = iota + 1
	ForeignKeyViolation
)

// Violation describes a constraint failure reported by a driver.
type Violation struct {
	Kind       ViolationKind
	Constraint string
	Table      string
	Fields     []string
	Values     []string
}

// PostgreSQL SQLSTATE codes used for classification.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidCatalog      = "3D000"
	pgDeadlock            = "40P01"
	pgSerialization       = "40001"
	pgLockNotAvailable    = "55P03"
	pgQueryCanceled       = "57014"
)

// sqliteCoder matches driver errors carrying an (extended) SQLite result code.
type sqliteCoder interface {
	error
	Code() int
}

var (
	pgKeyDetail      = regexp.MustCompile(`Key \((.+?)\)=\((.*?)\)`)
	sqliteUniqueCols = regexp.MustCompile(`UNIQUE constraint failed: ([^()]+)`)
)

// ClassifyViolation reports whether err is a unique or foreign-key violation
// from either driver.
func ClassifyViolation(err error) (Violation, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		var v Violation
		switch pgErr.Code {
		case pgUniqueViolation:
			v.Kind = UniqueViolation
		case pgForeignKeyViolation:
			v.Kind = ForeignKeyViolation
		default:
			return Violation{}, false
		}
		v.Constraint = pgErr.ConstraintName
		v.Table = pgErr.TableName
		if m := pgKeyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
			v.Fields = splitList(m[1])
			v.Values = splitList(m[2])
		} else if pgErr.ColumnName != "" {
			v.Fields = []string{pgErr.ColumnName}
		}
		return v, true
	}

	var sqErr sqliteCoder
	if errors.As(err, &sqErr) {
		code := sqErr.Code()
		if code&0xff != sqlite3.SQLITE_CONSTRAINT {
			return Violation{}, false
		}
		msg := sqErr.Error()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			v := Violation{Kind: UniqueViolation}
			if m := sqliteUniqueCols.FindStringSubmatch(msg); m != nil {
				for _, col := range splitList(m[1]) {
					table, field, ok := strings.Cut(col, ".")
					if !ok {
						field = table
						table = ""
					}
					v.Table = table
					v.Fields = append(v.Fields, field)
				}
			}
			return v, true
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return Violation{Kind: ForeignKeyViolation}, true
		}
	}

	return Violation{}, false
}

// IsMissingDatabase reports whether the driver rejected the connection
// because the target database does not exist.
func IsMissingDatabase(err error) bool {
	if errors.Is(err, ErrDatabaseNotFound) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidCatalog {
		return true
	}
	var sqErr sqliteCoder
	if errors.As(err, &sqErr) && sqErr.Code()&0xff == sqlite3.SQLITE_CANTOPEN {
		return true
	}
	return false
}

// IsConnectionError reports failures to reach or keep the database
// connection, as opposed to failures of a statement itself.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// IsTransient reports whether a failed statement may succeed if retried:
// dropped connections, timeouts, deadlocks and lock contention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQueryTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDeadlock, pgSerialization, pgLockNotAvailable, pgQueryCanceled:
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var sqErr sqliteCoder
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
