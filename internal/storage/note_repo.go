package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks github.com/uestcbean/phoebe-service/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// NoteStore defines the read-only note access the sync pipeline needs.
// Notes are owned by the note-management subsystem; this package only
// enumerates them.
type NoteStore interface {
	// GetByID gets a note by id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*Note, error)
	// ListActive returns all ACTIVE notes across all owners, ordered by id.
	ListActive(ctx context.Context) ([]*Note, error)
	// ListActiveByOwner returns one owner's ACTIVE notes, ordered by id.
	ListActiveByOwner(ctx context.Context, ownerID int64) ([]*Note, error)
}

// NoteRepo provides note read access backed by SQLite.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *sql.DB
}

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

const noteColumns = "id, owner_id, source, title, content, comment, tags, state, created_at, ingested_at"

// GetByID gets a note by id.
func (r *NoteRepo) GetByID(ctx context.Context, id int64) (*Note, error) {
	note, err := scanNote(r.db.QueryRowContext(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	return note, nil
}

// ListActive returns all ACTIVE notes across all owners.
func (r *NoteRepo) ListActive(ctx context.Context) ([]*Note, error) {
	return r.list(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE state = ? ORDER BY id", NoteActive)
}

// ListActiveByOwner returns one owner's ACTIVE notes.
func (r *NoteRepo) ListActiveByOwner(ctx context.Context, ownerID int64) ([]*Note, error) {
	return r.list(ctx,
		"SELECT "+noteColumns+" FROM notes WHERE owner_id = ? AND state = ? ORDER BY id", ownerID, NoteActive)
}

// Insert adds a note. Used by data seeding and tests; the live write
// path belongs to the note-management subsystem.
func (r *NoteRepo) Insert(ctx context.Context, note *Note) error {
	if note.State == "" {
		note.State = NoteActive
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (owner_id, source, title, content, comment, tags, state, created_at, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.OwnerID, note.Source, note.Title, note.Content, note.Comment,
		strings.Join(note.Tags, ","), note.State, note.CreatedAt, note.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	note.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read note id: %w", err)
	}
	return nil
}

func (r *NoteRepo) list(ctx context.Context, query string, args ...any) ([]*Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var notes []*Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*Note, error) {
	var note Note
	var tags string
	var ingestedAt sql.NullTime

	if err := s.Scan(
		&note.ID, &note.OwnerID, &note.Source, &note.Title, &note.Content,
		&note.Comment, &tags, &note.State, &note.CreatedAt, &ingestedAt,
	); err != nil {
		return nil, err
	}

	if tags != "" {
		note.Tags = strings.Split(tags, ",")
	}
	if ingestedAt.Valid {
		note.IngestedAt = &ingestedAt.Time
	}
	return &note, nil
}
