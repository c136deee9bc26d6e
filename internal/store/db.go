package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	_ "modernc.org/sqlite"             // cgo-free sqlite driver
)

// Dialect identifies the SQL backend behind a DB handle.
type Dialect int

const (
	// DialectSQLite is the default file-backed engine.
	DialectSQLite Dialect = iota
	// DialectPostgres is used when a Postgres URL is configured.
	DialectPostgres
)

// DB bundles a sql.DB handle with its dialect so query text written with
// '?' placeholders can be rebound for Postgres. Shared by the knowledge
// store, the reinforcement tracker, and the activity log.
type DB struct {
	SQL     *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) the sqlite database at path.
func OpenSQLite(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Serialized writer access; avoids SQLITE_BUSY under concurrent upserts.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &DB{SQL: db, dialect: DialectSQLite}, nil
}

// OpenPostgres opens a Postgres database through the pgx stdlib driver.
func OpenPostgres(url string) (*DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{SQL: db, dialect: DialectPostgres}, nil
}

// Dialect returns the backend dialect.
func (d *DB) Dialect() Dialect { return d.dialect }

// Close closes the underlying handle.
func (d *DB) Close() error {
	if d.SQL != nil {
		return d.SQL.Close()
	}
	return nil
}

// Rebind converts '?' placeholders to the dialect's form ($1, $2, ... for
// Postgres). Query text in this repository is written with '?'.
func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
