package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_binding_store.go -package=mocks github.com/uestcbean/phoebe-service/internal/storage BindingStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BindingStore defines the interface for knowledge base binding storage operations.
type BindingStore interface {
	// Insert creates a binding for an owner. Fails if the owner already has one.
	Insert(ctx context.Context, binding *KnowledgeBaseBinding) error
	// GetByOwner gets the binding for an owner. Returns ErrNotFound if absent.
	GetByOwner(ctx context.Context, ownerID int64) (*KnowledgeBaseBinding, error)
	// DeleteByOwner removes the owner's binding. No-op if absent.
	DeleteByOwner(ctx context.Context, ownerID int64) error
	// TouchLastSync records the time of the owner's latest successful sync.
	TouchLastSync(ctx context.Context, ownerID int64, at time.Time) error
}

// BindingRepo provides knowledge base binding operations backed by SQLite.
// It implements the BindingStore interface.
type BindingRepo struct {
	db *sql.DB
}

// NewBindingRepo creates a new BindingRepo.
func NewBindingRepo(db *sql.DB) *BindingRepo {
	return &BindingRepo{db: db}
}

// Insert creates a binding for an owner.
func (r *BindingRepo) Insert(ctx context.Context, binding *KnowledgeBaseBinding) error {
	now := time.Now().UTC()
	if binding.State == "" {
		binding.State = BindingActive
	}
	binding.CreatedAt = now
	binding.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO knowledge_base_bindings (owner_id, external_index_id, workspace_id, display_name, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		binding.OwnerID, binding.ExternalIndexID, binding.WorkspaceID,
		binding.DisplayName, binding.State, binding.CreatedAt, binding.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert binding for owner %d: %w", binding.OwnerID, err)
	}

	binding.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read binding id: %w", err)
	}
	return nil
}

// GetByOwner gets the binding for an owner.
func (r *BindingRepo) GetByOwner(ctx context.Context, ownerID int64) (*KnowledgeBaseBinding, error) {
	var b KnowledgeBaseBinding
	var lastSync sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, external_index_id, workspace_id, display_name, state, last_sync_at, created_at, updated_at
		 FROM knowledge_base_bindings WHERE owner_id = ?`, ownerID,
	).Scan(&b.ID, &b.OwnerID, &b.ExternalIndexID, &b.WorkspaceID, &b.DisplayName, &b.State, &lastSync, &b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query binding: %w", err)
	}

	if lastSync.Valid {
		b.LastSyncAt = &lastSync.Time
	}
	return &b, nil
}

// DeleteByOwner removes the owner's binding.
func (r *BindingRepo) DeleteByOwner(ctx context.Context, ownerID int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM knowledge_base_bindings WHERE owner_id = ?", ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete binding for owner %d: %w", ownerID, err)
	}
	return nil
}

// TouchLastSync records the time of the owner's latest successful sync.
func (r *BindingRepo) TouchLastSync(ctx context.Context, ownerID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE knowledge_base_bindings SET last_sync_at = ?, updated_at = ? WHERE owner_id = ?",
		at, time.Now().UTC(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to update last sync for owner %d: %w", ownerID, err)
	}
	return nil
}
