// Package pool manages the scarce set of pre-provisioned remote
// knowledge base indexes and their assignment to owners. Assignment is
// the one concurrently mutated piece of state in the system: it relies
// on a conditional UPDATE guarded by the previous slot state, retried
// on conflict.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/uestcbean/phoebe-service/internal/contextutil"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// SeedEntry describes one slot to add during batch seeding.
type SeedEntry struct {
	ExternalIndexID string `json:"externalIndexId"`
	CategoryID      string `json:"categoryId"`
	DisplayName     string `json:"displayName"`
}

// Stats summarizes the pool by state.
type Stats struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Assigned  int64 `json:"assigned"`
	Disabled  int64 `json:"disabled"`
}

// Pool allocates index slots to owners.
type Pool struct {
	slots           storage.SlotStore
	bindings        storage.BindingStore
	workspaceID     string
	defaultCategory string
}

// New creates a Pool.
func New(slots storage.SlotStore, bindings storage.BindingStore, workspaceID, defaultCategory string) *Pool {
	return &Pool{
		slots:           slots,
		bindings:        bindings,
		workspaceID:     workspaceID,
		defaultCategory: defaultCategory,
	}
}

// Seed adds a new slot to the pool. Returns ErrDuplicateSlot if the
// external index id is already present.
func (p *Pool) Seed(ctx context.Context, externalIndexID, categoryID, displayName string) (*storage.IndexSlot, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := p.slots.GetByExternalIndexID(ctx, externalIndexID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSlot, externalIndexID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	slot := &storage.IndexSlot{
		ExternalIndexID: externalIndexID,
		CategoryID:      categoryID,
		DisplayName:     displayName,
		State:           storage.SlotAvailable,
	}
	if err := p.slots.Insert(ctx, slot); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "added index to pool", "slot_id", slot.ID, "index_id", externalIndexID, "category_id", categoryID)
	return slot, nil
}

// BatchSeed adds many slots, skipping duplicates. Returns the number added.
func (p *Pool) BatchSeed(ctx context.Context, entries []SeedEntry) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	added := 0
	for _, entry := range entries {
		_, err := p.Seed(ctx, entry.ExternalIndexID, entry.CategoryID, entry.DisplayName)
		if errors.Is(err, ErrDuplicateSlot) {
			logger.WarnContext(ctx, "skipping duplicate index", "index_id", entry.ExternalIndexID)
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	logger.InfoContext(ctx, "batch added indexes to pool", "added", added)
	return added, nil
}

// Assign binds one AVAILABLE slot to the owner and creates the owner's
// knowledge base binding. Idempotent: an owner who already holds a slot
// gets it back without consuming another. Returns ErrPoolExhausted when
// no AVAILABLE slot is left.
//
// Two concurrent callers may select the same candidate slot; the
// conditional state transition lets only one win, and the loser retries
// with a fresh selection. Attempts are bounded by the AVAILABLE count
// observed at entry so a drained pool terminates the loop.
func (p *Pool) Assign(ctx context.Context, ownerID int64) (*storage.IndexSlot, error) {
	logger := contextutil.LoggerFromContext(ctx)

	existing, err := p.slots.GetByOwner(ctx, ownerID)
	if err == nil {
		logger.InfoContext(ctx, "owner already has assigned index", "owner_id", ownerID, "index_id", existing.ExternalIndexID)
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	counts, err := p.slots.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	maxAttempts := counts[storage.SlotAvailable] + 1

	for attempt := int64(0); attempt < maxAttempts; attempt++ {
		candidate, err := p.slots.FirstAvailable(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		affected, err := p.slots.AssignToOwner(ctx, candidate.ID, ownerID)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Lost the race to a concurrent assignment.
			logger.WarnContext(ctx, "slot taken by concurrent assignment, retrying", "slot_id", candidate.ID, "owner_id", ownerID)
			continue
		}

		if err := p.createBinding(ctx, ownerID, candidate); err != nil {
			// Compensate: the slot must not stay assigned without a binding.
			if relErr := p.slots.Release(ctx, candidate.ID); relErr != nil {
				logger.ErrorContext(ctx, "failed to release slot after binding failure", "slot_id", candidate.ID, "error", relErr)
			}
			// A concurrent assignment for the same owner may have bound
			// first; hand back the slot that binding points at instead of
			// surfacing the unique-constraint failure.
			if winner, ok := p.slotBoundTo(ctx, ownerID); ok {
				logger.InfoContext(ctx, "owner bound by concurrent assignment", "owner_id", ownerID, "index_id", winner.ExternalIndexID)
				return winner, nil
			}
			return nil, fmt.Errorf("failed to create binding for owner %d: %w", ownerID, err)
		}

		logger.InfoContext(ctx, "assigned index to owner", "owner_id", ownerID, "index_id", candidate.ExternalIndexID)
		return p.slots.GetByID(ctx, candidate.ID)
	}

	logger.ErrorContext(ctx, "no available index in pool", "owner_id", ownerID)
	return nil, ErrPoolExhausted
}

// slotBoundTo resolves the pool slot behind an owner's binding. The
// binding is the source of truth here rather than GetByOwner: another
// caller's losing attempt can hold a transient slot assignment for the
// same owner, but only the binding winner's index id is recorded.
func (p *Pool) slotBoundTo(ctx context.Context, ownerID int64) (*storage.IndexSlot, bool) {
	binding, err := p.bindings.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, false
	}
	slot, err := p.slots.GetByExternalIndexID(ctx, binding.ExternalIndexID)
	if err != nil {
		return nil, false
	}
	if slot.AssignedOwnerID == nil || *slot.AssignedOwnerID != ownerID {
		return nil, false
	}
	return slot, true
}

func (p *Pool) createBinding(ctx context.Context, ownerID int64, slot *storage.IndexSlot) error {
	name := slot.DisplayName
	if name == "" {
		name = fmt.Sprintf("kb_%d", ownerID)
	}
	return p.bindings.Insert(ctx, &storage.KnowledgeBaseBinding{
		OwnerID:         ownerID,
		ExternalIndexID: slot.ExternalIndexID,
		WorkspaceID:     p.workspaceID,
		DisplayName:     name,
		State:           storage.BindingActive,
	})
}

// Release returns the owner's slot to the pool and removes the owner's
// binding. No-op if the owner has no slot; safe to call repeatedly.
func (p *Pool) Release(ctx context.Context, ownerID int64) error {
	logger := contextutil.LoggerFromContext(ctx)

	slot, err := p.slots.GetByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := p.slots.Release(ctx, slot.ID); err != nil {
		return err
	}
	if err := p.bindings.DeleteByOwner(ctx, ownerID); err != nil {
		return err
	}

	logger.InfoContext(ctx, "released index from owner", "owner_id", ownerID, "index_id", slot.ExternalIndexID)
	return nil
}

// Disable takes a slot out of rotation regardless of assignment.
func (p *Pool) Disable(ctx context.Context, id int64) error {
	if _, err := p.slots.GetByID(ctx, id); err != nil {
		return err
	}
	if err := p.slots.SetState(ctx, id, storage.SlotDisabled); err != nil {
		return err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "disabled pool slot", "slot_id", id)
	return nil
}

// Enable returns a DISABLED slot to rotation. A slot still holding an
// owner goes back to ASSIGNED; otherwise it becomes AVAILABLE.
func (p *Pool) Enable(ctx context.Context, id int64) error {
	slot, err := p.slots.GetByID(ctx, id)
	if err != nil {
		return err
	}

	state := storage.SlotAvailable
	if slot.AssignedOwnerID != nil {
		state = storage.SlotAssigned
	}
	if err := p.slots.SetState(ctx, id, state); err != nil {
		return err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "enabled pool slot", "slot_id", id, "state", state)
	return nil
}

// Delete removes a slot from the pool. Returns ErrSlotInUse while the
// slot is assigned; release it first.
func (p *Pool) Delete(ctx context.Context, id int64) error {
	slot, err := p.slots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if slot.State == storage.SlotAssigned {
		return fmt.Errorf("%w: slot %d", ErrSlotInUse, id)
	}
	if err := p.slots.Delete(ctx, id); err != nil {
		return err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted pool slot", "slot_id", id)
	return nil
}

// CategoryFor returns the upload category for an owner: the category of
// the owner's assigned slot, or the configured default. Returns
// ErrNoCategoryConfigured when neither exists.
func (p *Pool) CategoryFor(ctx context.Context, ownerID int64) (string, error) {
	slot, err := p.slots.GetByOwner(ctx, ownerID)
	if err == nil && slot.CategoryID != "" {
		return slot.CategoryID, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if p.defaultCategory == "" {
		return "", fmt.Errorf("%w: owner %d has no assigned category and no default is set", ErrNoCategoryConfigured, ownerID)
	}
	return p.defaultCategory, nil
}

// AssignedTo returns the slot currently held by an owner, or
// storage.ErrNotFound.
func (p *Pool) AssignedTo(ctx context.Context, ownerID int64) (*storage.IndexSlot, error) {
	return p.slots.GetByOwner(ctx, ownerID)
}

// List returns every slot in the pool.
func (p *Pool) List(ctx context.Context) ([]*storage.IndexSlot, error) {
	return p.slots.List(ctx)
}

// ListByState returns slots filtered by state.
func (p *Pool) ListByState(ctx context.Context, state storage.SlotState) ([]*storage.IndexSlot, error) {
	return p.slots.ListByState(ctx, state)
}

// Stats returns pool counts by state.
func (p *Pool) Stats(ctx context.Context) (Stats, error) {
	counts, err := p.slots.CountByState(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Available: counts[storage.SlotAvailable],
		Assigned:  counts[storage.SlotAssigned],
		Disabled:  counts[storage.SlotDisabled],
	}
	s.Total = s.Available + s.Assigned + s.Disabled
	return s, nil
}
