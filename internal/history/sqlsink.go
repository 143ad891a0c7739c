package history

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLSink appends events to the displayhold_history table of any sqlx
// database. The sqlite and postgres subpackages open it with their schema.
type SQLSink struct {
	db *sqlx.DB
}

// NewSQLSink executes schema on db and returns the sink. db is closed when
// the schema cannot be created.
func NewSQLSink(ctx context.Context, db *sqlx.DB, schema []string) (*SQLSink, error) {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history schema: %w", err)
		}
	}
	return &SQLSink{db: db}, nil
}

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	e.OccurredAt = e.OccurredAt.UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO displayhold_history(occurred_at, type, pid, from_status, to_status, shortcut_id, hold_pid, detail)
		VALUES(:occurred_at, :type, :pid, :from_status, :to_status, :shortcut_id, :hold_pid, :detail);`, e)
	return err
}

// Recent returns up to limit events, newest first.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []Event{}
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT occurred_at, type, pid, from_status, to_status, shortcut_id, hold_pid, detail
		FROM displayhold_history
		ORDER BY occurred_at DESC
		LIMIT ?;`), limit)
	return out, err
}

func (s *SQLSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
