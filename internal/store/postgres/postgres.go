package postgres

import (
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/loykin/displayhold/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS shortcuts(
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		command TEXT NOT NULL,
		work_dir TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL DEFAULT '',
		wait_for_exit BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_shortcuts_name ON shortcuts(name);`,
}

// New opens a PostgreSQL database through the pgx stdlib driver. No
// connection is made until the first query.
func New(dsn string) (*store.SQL, error) {
	d, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return store.NewSQL(d, schema), nil
}
