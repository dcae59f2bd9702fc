package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_sync_record_store.go -package=mocks github.com/uestcbean/phoebe-service/internal/storage SyncRecordStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncRecordStore is the append-only ledger of sync attempts. Records
// are inserted, never updated or deleted; a note counts as synced when
// its latest record has outcome SUCCESS.
type SyncRecordStore interface {
	// Record appends a sync record. Assigns ID and SyncedAt when unset.
	Record(ctx context.Context, rec *SyncRecord) error
	// IsSynced reports whether the latest record for a note is SUCCESS.
	IsSynced(ctx context.Context, noteID int64) (bool, error)
	// LatestSuccessful returns the newest SUCCESS record for a note.
	// Returns ErrNotFound if the note has no successful sync.
	LatestSuccessful(ctx context.Context, noteID int64) (*SyncRecord, error)
	// ListByNote returns all records for a note, newest first.
	ListByNote(ctx context.Context, noteID int64) ([]*SyncRecord, error)
	// ListByOwner returns all records for an owner, newest first.
	ListByOwner(ctx context.Context, ownerID int64) ([]*SyncRecord, error)
}

// SyncRecordRepo provides sync ledger operations backed by SQLite.
// It implements the SyncRecordStore interface.
type SyncRecordRepo struct {
	db *sql.DB
}

// NewSyncRecordRepo creates a new SyncRecordRepo.
func NewSyncRecordRepo(db *sql.DB) *SyncRecordRepo {
	return &SyncRecordRepo{db: db}
}

const syncRecordColumns = "id, note_id, owner_id, external_index_id, remote_document_id, outcome, error_message, synced_at"

// Record appends a sync record.
func (r *SyncRecordRepo) Record(ctx context.Context, rec *SyncRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SyncedAt.IsZero() {
		rec.SyncedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_records (id, note_id, owner_id, external_index_id, remote_document_id, outcome, error_message, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.NoteID, rec.OwnerID, rec.ExternalIndexID,
		rec.RemoteDocumentID, rec.Outcome, rec.ErrorMessage, rec.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}
	return nil
}

// IsSynced reports whether the latest record for a note is SUCCESS.
// The rowid tie-break keeps the answer deterministic when two attempts
// share a timestamp.
func (r *SyncRecordRepo) IsSynced(ctx context.Context, noteID int64) (bool, error) {
	var outcome SyncOutcome
	err := r.db.QueryRowContext(ctx,
		`SELECT outcome FROM sync_records WHERE note_id = ?
		 ORDER BY synced_at DESC, rowid DESC LIMIT 1`, noteID,
	).Scan(&outcome)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query sync outcome: %w", err)
	}
	return outcome == SyncSuccess, nil
}

// LatestSuccessful returns the newest SUCCESS record for a note.
func (r *SyncRecordRepo) LatestSuccessful(ctx context.Context, noteID int64) (*SyncRecord, error) {
	rec, err := scanSyncRecord(r.db.QueryRowContext(ctx,
		"SELECT "+syncRecordColumns+` FROM sync_records WHERE note_id = ? AND outcome = ?
		 ORDER BY synced_at DESC, rowid DESC LIMIT 1`, noteID, SyncSuccess))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest successful sync: %w", err)
	}
	return rec, nil
}

// ListByNote returns all records for a note, newest first.
func (r *SyncRecordRepo) ListByNote(ctx context.Context, noteID int64) ([]*SyncRecord, error) {
	return r.list(ctx,
		"SELECT "+syncRecordColumns+" FROM sync_records WHERE note_id = ? ORDER BY synced_at DESC, rowid DESC", noteID)
}

// ListByOwner returns all records for an owner, newest first.
func (r *SyncRecordRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*SyncRecord, error) {
	return r.list(ctx,
		"SELECT "+syncRecordColumns+" FROM sync_records WHERE owner_id = ? ORDER BY synced_at DESC, rowid DESC", ownerID)
}

func (r *SyncRecordRepo) list(ctx context.Context, query string, args ...any) ([]*SyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var recs []*SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanSyncRecord(s scanner) (*SyncRecord, error) {
	var rec SyncRecord
	if err := s.Scan(
		&rec.ID, &rec.NoteID, &rec.OwnerID, &rec.ExternalIndexID,
		&rec.RemoteDocumentID, &rec.Outcome, &rec.ErrorMessage, &rec.SyncedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
