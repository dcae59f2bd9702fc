package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_slot_store.go -package=mocks github.com/uestcbean/phoebe-service/internal/storage SlotStore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SlotStore defines the interface for index slot storage operations.
type SlotStore interface {
	// Insert adds a new slot to the pool.
	Insert(ctx context.Context, slot *IndexSlot) error
	// GetByID gets a slot by its primary key. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*IndexSlot, error)
	// GetByExternalIndexID gets a slot by its remote index id. Returns ErrNotFound if absent.
	GetByExternalIndexID(ctx context.Context, externalIndexID string) (*IndexSlot, error)
	// GetByOwner gets the slot currently assigned to an owner. Returns ErrNotFound if absent.
	GetByOwner(ctx context.Context, ownerID int64) (*IndexSlot, error)
	// FirstAvailable returns the AVAILABLE slot with the lowest id. Returns ErrNotFound if none.
	FirstAvailable(ctx context.Context) (*IndexSlot, error)
	// AssignToOwner performs the conditional AVAILABLE->ASSIGNED transition.
	// Returns the number of rows affected: 0 means the slot was taken by a
	// concurrent caller (or is no longer AVAILABLE).
	AssignToOwner(ctx context.Context, id, ownerID int64) (int64, error)
	// Release transitions a slot back to AVAILABLE and clears its owner.
	Release(ctx context.Context, id int64) error
	// SetState forces a slot into the given state.
	SetState(ctx context.Context, id int64, state SlotState) error
	// Delete removes a slot row.
	Delete(ctx context.Context, id int64) error
	// List returns all slots ordered by id.
	List(ctx context.Context) ([]*IndexSlot, error)
	// ListByState returns all slots in the given state ordered by id.
	ListByState(ctx context.Context, state SlotState) ([]*IndexSlot, error)
	// CountByState counts slots per state.
	CountByState(ctx context.Context) (map[SlotState]int64, error)
}

// SlotRepo provides index slot operations backed by SQLite.
// It implements the SlotStore interface.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo creates a new SlotRepo.
func NewSlotRepo(db *sql.DB) *SlotRepo {
	return &SlotRepo{db: db}
}

const slotColumns = "id, external_index_id, category_id, display_name, state, assigned_owner_id, assigned_at, created_at, updated_at"

// Insert adds a new slot to the pool.
func (r *SlotRepo) Insert(ctx context.Context, slot *IndexSlot) error {
	now := time.Now().UTC()
	if slot.State == "" {
		slot.State = SlotAvailable
	}
	slot.CreatedAt = now
	slot.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO index_slots (external_index_id, category_id, display_name, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		slot.ExternalIndexID, slot.CategoryID, slot.DisplayName, slot.State, slot.CreatedAt, slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert slot: %w", err)
	}

	slot.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read slot id: %w", err)
	}
	return nil
}

// GetByID gets a slot by its primary key.
func (r *SlotRepo) GetByID(ctx context.Context, id int64) (*IndexSlot, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM index_slots WHERE id = ?", id))
}

// GetByExternalIndexID gets a slot by its remote index id.
func (r *SlotRepo) GetByExternalIndexID(ctx context.Context, externalIndexID string) (*IndexSlot, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM index_slots WHERE external_index_id = ?", externalIndexID))
}

// GetByOwner gets the slot currently assigned to an owner.
func (r *SlotRepo) GetByOwner(ctx context.Context, ownerID int64) (*IndexSlot, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM index_slots WHERE assigned_owner_id = ?", ownerID))
}

// FirstAvailable returns the AVAILABLE slot with the lowest id.
func (r *SlotRepo) FirstAvailable(ctx context.Context) (*IndexSlot, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM index_slots WHERE state = ? ORDER BY id LIMIT 1", SlotAvailable))
}

// AssignToOwner performs the conditional AVAILABLE->ASSIGNED transition.
// The WHERE state = 'AVAILABLE' guard makes the transition atomic: of two
// concurrent callers only one sees a row affected.
func (r *SlotRepo) AssignToOwner(ctx context.Context, id, ownerID int64) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE index_slots
		 SET state = ?, assigned_owner_id = ?, assigned_at = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		SlotAssigned, ownerID, now, now, id, SlotAvailable,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to assign slot %d: %w", id, err)
	}
	return res.RowsAffected()
}

// Release transitions a slot back to AVAILABLE and clears its owner.
func (r *SlotRepo) Release(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE index_slots
		 SET state = ?, assigned_owner_id = NULL, assigned_at = NULL, updated_at = ?
		 WHERE id = ?`,
		SlotAvailable, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to release slot %d: %w", id, err)
	}
	return nil
}

// SetState forces a slot into the given state.
func (r *SlotRepo) SetState(ctx context.Context, id int64, state SlotState) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE index_slots SET state = ?, updated_at = ? WHERE id = ?",
		state, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set slot %d state: %w", id, err)
	}
	return nil
}

// Delete removes a slot row.
func (r *SlotRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM index_slots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete slot %d: %w", id, err)
	}
	return nil
}

// List returns all slots ordered by id.
func (r *SlotRepo) List(ctx context.Context) ([]*IndexSlot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+slotColumns+" FROM index_slots ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return r.scanRows(rows)
}

// ListByState returns all slots in the given state ordered by id.
func (r *SlotRepo) ListByState(ctx context.Context, state SlotState) ([]*IndexSlot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+slotColumns+" FROM index_slots WHERE state = ? ORDER BY id", state)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots by state: %w", err)
	}
	return r.scanRows(rows)
}

// CountByState counts slots per state.
func (r *SlotRepo) CountByState(ctx context.Context) (map[SlotState]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT state, COUNT(*) FROM index_slots GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[SlotState]int64)
	for rows.Next() {
		var state SlotState
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan slot count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (r *SlotRepo) scanOne(row *sql.Row) (*IndexSlot, error) {
	var slot IndexSlot
	var ownerID sql.NullInt64
	var assignedAt sql.NullTime

	err := row.Scan(
		&slot.ID, &slot.ExternalIndexID, &slot.CategoryID, &slot.DisplayName,
		&slot.State, &ownerID, &assignedAt, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query slot: %w", err)
	}

	if ownerID.Valid {
		slot.AssignedOwnerID = &ownerID.Int64
	}
	if assignedAt.Valid {
		slot.AssignedAt = &assignedAt.Time
	}
	return &slot, nil
}

func (r *SlotRepo) scanRows(rows *sql.Rows) ([]*IndexSlot, error) {
	defer func() {
		_ = rows.Close()
	}()

	var slots []*IndexSlot
	for rows.Next() {
		var slot IndexSlot
		var ownerID sql.NullInt64
		var assignedAt sql.NullTime

		if err := rows.Scan(
			&slot.ID, &slot.ExternalIndexID, &slot.CategoryID, &slot.DisplayName,
			&slot.State, &ownerID, &assignedAt, &slot.CreatedAt, &slot.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		if ownerID.Valid {
			slot.AssignedOwnerID = &ownerID.Int64
		}
		if assignedAt.Valid {
			slot.AssignedAt = &assignedAt.Time
		}
		slots = append(slots, &slot)
	}
	return slots, rows.Err()
}
