package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/loykin/displayhold/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shortcuts(
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		command TEXT NOT NULL,
		work_dir TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL DEFAULT '',
		wait_for_exit BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_shortcuts_name ON shortcuts(name);`,
}

// New opens a SQLite database at path (modernc.org/sqlite driver, CGO-free).
// Use ":memory:" for an in-memory database.
func New(path string) (*store.SQL, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	dsn := p
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	if p != ":memory:" && !strings.Contains(p, "?") {
		// busy timeout on every pooled connection helps with short concurrent locks
		dsn = p + "?_pragma=busy_timeout(3000)"
	}
	d, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if p == ":memory:" {
		// every connection would get its own empty database
		d.SetMaxOpenConns(1)
	}
	return store.NewSQL(d, schema), nil
}
