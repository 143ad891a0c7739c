// Package store persists the shortcut library. SQL holds the queries shared
// by every backend; the sqlite and postgres subpackages open a database and
// supply the dialect's schema.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/loykin/displayhold/internal/shortcut"
)

// Store is the persistence interface for shortcuts. It satisfies
// shortcut.Repository so it can back a run directly.
type Store interface {
	shortcut.Repository
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, s shortcut.Shortcut) error
	List(ctx context.Context) ([]shortcut.Shortcut, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// SQL implements Store over any sqlx database. Queries are written with '?'
// placeholders and rebound for the driver.
type SQL struct {
	db     *sqlx.DB
	schema []string
}

// NewSQL wraps db. schema is executed in order by EnsureSchema.
func NewSQL(db *sqlx.DB, schema []string) *SQL {
	return &SQL{db: db, schema: schema}
}

// DB exposes the underlying handle for tests and migrations.
func (s *SQL) DB() *sqlx.DB { return s.db }

func (s *SQL) EnsureSchema(ctx context.Context) error {
	for _, q := range s.schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }

const columns = `id, name, command, work_dir, profile, wait_for_exit, created_at, updated_at`

// Save inserts or replaces the shortcut with the same id. CreatedAt of an
// existing row is kept.
func (s *SQL) Save(ctx context.Context, sc shortcut.Shortcut) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.CreatedAt = sc.CreatedAt.UTC()
	sc.UpdatedAt = now
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO shortcuts(`+columns+`)
		VALUES(:id, :name, :command, :work_dir, :profile, :wait_for_exit, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			command=excluded.command,
			work_dir=excluded.work_dir,
			profile=excluded.profile,
			wait_for_exit=excluded.wait_for_exit,
			updated_at=excluded.updated_at;`, sc)
	if err != nil {
		return fmt.Errorf("save shortcut %s: %w", sc.ID, err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, id string) (shortcut.Shortcut, error) {
	var sc shortcut.Shortcut
	err := s.db.GetContext(ctx, &sc, s.db.Rebind(`SELECT `+columns+` FROM shortcuts WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return shortcut.Shortcut{}, fmt.Errorf("%w: %s", shortcut.ErrNotFound, id)
	}
	if err != nil {
		return shortcut.Shortcut{}, err
	}
	return sc, nil
}

func (s *SQL) Contains(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(1) FROM shortcuts WHERE id=?`), id); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQL) List(ctx context.Context) ([]shortcut.Shortcut, error) {
	out := []shortcut.Shortcut{}
	if err := s.db.SelectContext(ctx, &out, `SELECT `+columns+` FROM shortcuts ORDER BY name, id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQL) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM shortcuts WHERE id=?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", shortcut.ErrNotFound, id)
	}
	return nil
}
