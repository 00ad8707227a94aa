package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name:        "SQLite",
	quote:       func(ident string) string { return `"` + ident + `"` },
	placeholder: func(int) string { return "?" },
	createTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, table)
	},
	fieldExpr: func(path []string) string {
		return fmt.Sprintf(`json_extract(doc, '$.%s')`, strings.Join(path, "."))
	},
	isDuplicate: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	},
}

// NewSQLiteDocumentStore opens a SQLite-backed document store.
// dbPath is the path to the SQLite database file (e.g., "./data/datastore.db")
func NewSQLiteDocumentStore(dbPath string) (*SQLDocumentStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	log.Printf("[SQLiteDocumentStore] Initialized with database: %s", dbPath)
	return newSQLDocumentStore(db, sqliteDialect), nil
}
