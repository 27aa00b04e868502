package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MemoryPath selects a private in-memory SQLite database.
	MemoryPath = ":memory:"
)

type Config struct {
	Driver string
	// Path is the SQLite file, or MemoryPath.
	Path string
	// DSN is the postgres connection string.
	DSN string
}

// EnsureDir creates the parent directory of a SQLite file if missing.
func EnsureDir(path string) error {
	if path == "" || path == MemoryPath {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Open opens the configured database. SQLite connections run with foreign
// keys on and a busy timeout, through a single connection.
func Open(cfg Config) (*sql.DB, error) {
	switch driver(cfg.Driver) {
	case DriverSQLite:
		return openSQLite(cfg.Path)
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("database dsn required for driver %s", DriverPostgres)
		}
		conn, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = MemoryPath
	}
	var dsn string
	if path == MemoryPath {
		dsn = fmt.Sprintf("file:tasksms-%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	} else {
		if err := EnsureDir(path); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; an in-memory database also lives only as
	// long as its connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	return conn, nil
}

func driver(name string) string {
	if name == "" {
		return DriverSQLite
	}
	return strings.ToLower(name)
}

// Rebind rewrites ? placeholders into the driver's bind syntax.
func Rebind(driverName, query string) string {
	if driver(driverName) != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
