// Package blobstore stores photo bytes in a local SQLite database.
//
// Photos live apart from the JSON record store because of their size: the
// record files are rewritten wholesale on every mutation, while photo blobs
// are written once and addressed by id. The database is opened lazily on
// first use and its schema is upgraded in place by goose migrations, which
// are idempotent and preserve existing rows.
package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/keepsakelab/giftbox/internal/blobstore/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Photo is one stored blob.
type Photo struct {
	ID        string
	Data      []byte
	Mime      string
	CreatedAt string
}

// Store is a keyed binary store for photos, backed by SQLite.
// Safe for concurrent use; SQLite serializes writes internally.
type Store struct {
	dsn  string
	once sync.Once
	db   *sql.DB
	err  error
}

// New returns a Store that will open the database at path on first use.
func New(path string) *Store {
	return &Store{dsn: path}
}

// open opens the database and applies pending migrations, exactly once.
func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	s.once.Do(func() {
		db, err := sql.Open("sqlite", s.dsn)
		if err != nil {
			s.err = fmt.Errorf("failed to open photo store: %w", err)
			return
		}
		goose.SetBaseFS(migrations.Migrations)
		goose.SetLogger(goose.NopLogger())
		if err := goose.SetDialect("sqlite3"); err != nil {
			s.err = fmt.Errorf("failed to set goose dialect: %w", err)
			return
		}
		if err := goose.UpContext(ctx, db, "."); err != nil {
			_ = db.Close()
			s.err = fmt.Errorf("failed to migrate photo store: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.err
}

// Put inserts or replaces the photo under its id.
func (s *Store) Put(ctx context.Context, p Photo) error {
	if p.ID == "" {
		return errors.New("photo id cannot be empty")
	}
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	query := `INSERT INTO photos (id, data, mime, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data,
			mime = excluded.mime,
			created_at = excluded.created_at`
	if _, err := db.ExecContext(ctx, query, p.ID, p.Data, p.Mime, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to store photo %s: %w", p.ID, err)
	}
	return nil
}

// Get returns the photo under id, or (nil, nil) when the id is unknown.
// A missing blob is a skippable condition everywhere photos are rendered or
// exported, never an error.
func (s *Store) Get(ctx context.Context, id string) (*Photo, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `SELECT id, data, mime, created_at FROM photos WHERE id = ?`, id)
	p := &Photo{}
	if err := row.Scan(&p.ID, &p.Data, &p.Mime, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load photo %s: %w", id, err)
	}
	return p, nil
}

// Delete removes the photo under id. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", id, err)
	}
	return nil
}

// IDs returns the ids of every stored photo.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id FROM photos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Wipe removes every stored photo. Used by the full app reset.
func (s *Store) Wipe(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM photos`); err != nil {
		return fmt.Errorf("failed to wipe photo store: %w", err)
	}
	return nil
}

// Close closes the database if it was ever opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
