package postgres

import (
	"context"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/loykin/displayhold/internal/history"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS displayhold_history(
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		type TEXT NOT NULL,
		pid INTEGER NOT NULL,
		from_status TEXT NOT NULL DEFAULT '',
		to_status TEXT NOT NULL DEFAULT '',
		shortcut_id TEXT NOT NULL DEFAULT '',
		hold_pid INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_displayhold_history_time ON displayhold_history(occurred_at);`,
}

// New connects to PostgreSQL and ensures the history table exists.
func New(dsn string) (*history.SQLSink, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return history.NewSQLSink(ctx, db, schema)
}
