package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")
)

// IsPostgresDSN reports whether dsn points to a Postgres server rather than a sqlite file.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Init creates the schema for the given sqlite path or Postgres DSN. It is idempotent.
func Init(dsn string) error {
	if dsn == "" {
		return errors.New("database path or DSN not specified")
	}

	db, err := GetDB(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	file := "sql/sqlite.sql"
	if isPostgres(db) {
		file = "sql/postgres.sql"
	}

	b, err := f.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading schema file %s: %w", file, err)
	}

	slog.Debug("applying db schema", "file", file)
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("creating database schema: %w", err)
	}
	return nil
}

// GetDB opens the sqlite file at path or, for postgres:// DSNs, a Postgres connection.
func GetDB(dsn string) (*sql.DB, error) {
	driver := driverSQLite
	if IsPostgresDSN(dsn) {
		driver = driverPostgres
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if driver == driverSQLite {
		// single writer
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}

func isPostgres(db *sql.DB) bool {
	_, ok := db.Driver().(*pq.Driver)
	return ok
}

// rebind converts ? placeholders into $n for Postgres.
func rebind(db *sql.DB, query string) string {
	if !isPostgres(db) {
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

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("error rolling back transaction", "error", err)
	}
}
