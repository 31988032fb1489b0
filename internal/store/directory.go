package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
)

// Directory is the procedure directory of one container in the store.
// It implements remote.Directory with the same no-upsert contract as a
// remote store.
type Directory struct {
	store     *Store
	container string
}

var _ remote.Directory = (*Directory)(nil)

// StoredProcedure is a procedure row.
type StoredProcedure struct {
	Container string
	ID        string
	Body      string
	Digest    string
	Revision  int64
}

// Directory returns the directory for container.
func (s *Store) Directory(container string) *Directory {
	return &Directory{store: s, container: container}
}

// ListExisting returns the procedure ids of the container ordered by id.
func (d *Directory) ListExisting(ctx context.Context) ([]string, error) {
	rows, err := d.store.db.QueryContext(ctx, `
		SELECT id FROM procedures
		WHERE container = ?
		ORDER BY id COLLATE BINARY ASC
	`, d.container)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan procedure id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate procedures: %w", err)
	}
	return ids, nil
}

// Create inserts rec. Returns an error wrapping remote.ErrConflict if the
// id already exists in the container.
func (d *Directory) Create(ctx context.Context, rec procedure.Record) error {
	result, err := d.store.db.ExecContext(ctx, `
		INSERT INTO procedures (container, id, body, digest, revision)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(container, id) DO NOTHING
	`, d.container, rec.ID, rec.Body, rec.Digest())
	if err != nil {
		return fmt.Errorf("create procedure %s: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create procedure %s: rows affected: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("create procedure %s: %w", rec.ID, remote.ErrConflict)
	}
	return nil
}

// Replace overwrites the body of an existing procedure and bumps its
// revision. Returns an error wrapping remote.ErrNotFound if the id is absent.
func (d *Directory) Replace(ctx context.Context, rec procedure.Record) error {
	result, err := d.store.db.ExecContext(ctx, `
		UPDATE procedures
		SET body = ?, digest = ?, revision = revision + 1
		WHERE container = ? AND id = ?
	`, rec.Body, rec.Digest(), d.container, rec.ID)
	if err != nil {
		return fmt.Errorf("replace procedure %s: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace procedure %s: rows affected: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("replace procedure %s: %w", rec.ID, remote.ErrNotFound)
	}
	return nil
}

// Get returns one stored procedure. Returns an error wrapping
// remote.ErrNotFound if it does not exist.
func (d *Directory) Get(ctx context.Context, id string) (StoredProcedure, error) {
	p := StoredProcedure{Container: d.container, ID: id}
	err := d.store.db.QueryRowContext(ctx, `
		SELECT body, digest, revision FROM procedures
		WHERE container = ? AND id = ?
	`, d.container, id).Scan(&p.Body, &p.Digest, &p.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredProcedure{}, fmt.Errorf("get procedure %s: %w", id, remote.ErrNotFound)
	}
	if err != nil {
		return StoredProcedure{}, fmt.Errorf("get procedure %s: %w", id, err)
	}
	return p, nil
}
