package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/uestcbean/phoebe-service/internal/storage"
)

func newTestPool(t *testing.T) (*Pool, *storage.SlotRepo, *storage.BindingRepo) {
	t.Helper()

	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}

	slots := storage.NewSlotRepo(db)
	bindings := storage.NewBindingRepo(db)
	return New(slots, bindings, "ws-test", "cate-default"), slots, bindings
}

func seedSlots(t *testing.T, p *Pool, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if _, err := p.Seed(context.Background(), fmt.Sprintf("idx-%03d", i), fmt.Sprintf("cate-%03d", i), ""); err != nil {
			t.Fatalf("Seed() error = %v", err)
		}
	}
}

func TestPool_Seed(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()

	slot, err := p.Seed(ctx, "idx-001", "cate-001", "first")
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if slot.State != storage.SlotAvailable {
		t.Errorf("Seed() state = %v, want %v", slot.State, storage.SlotAvailable)
	}

	if _, err := p.Seed(ctx, "idx-001", "cate-002", ""); !errors.Is(err, ErrDuplicateSlot) {
		t.Errorf("Seed() duplicate error = %v, want ErrDuplicateSlot", err)
	}
}

func TestPool_BatchSeedSkipsDuplicates(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()

	entries := []SeedEntry{
		{ExternalIndexID: "idx-a", CategoryID: "c"},
		{ExternalIndexID: "idx-b", CategoryID: "c"},
		{ExternalIndexID: "idx-a", CategoryID: "c"},
	}
	added, err := p.BatchSeed(ctx, entries)
	if err != nil {
		t.Fatalf("BatchSeed() error = %v", err)
	}
	if added != 2 {
		t.Errorf("BatchSeed() added = %d, want 2", added)
	}
}

func TestPool_AssignCreatesBinding(t *testing.T) {
	p, _, bindings := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	slot, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if slot.State != storage.SlotAssigned {
		t.Errorf("Assign() slot state = %v, want %v", slot.State, storage.SlotAssigned)
	}
	if slot.AssignedOwnerID == nil || *slot.AssignedOwnerID != 42 {
		t.Errorf("Assign() owner = %v, want 42", slot.AssignedOwnerID)
	}

	binding, err := bindings.GetByOwner(ctx, 42)
	if err != nil {
		t.Fatalf("GetByOwner() error = %v", err)
	}
	if binding.ExternalIndexID != slot.ExternalIndexID {
		t.Errorf("binding index = %s, want %s", binding.ExternalIndexID, slot.ExternalIndexID)
	}
	if binding.WorkspaceID != "ws-test" {
		t.Errorf("binding workspace = %s, want ws-test", binding.WorkspaceID)
	}
}

func TestPool_AssignIdempotent(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 2)

	first, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	second, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() second call error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Assign() second call slot = %d, want %d", second.ID, first.ID)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Assigned != 1 {
		t.Errorf("Stats() assigned = %d, want 1 (no extra slot consumed)", stats.Assigned)
	}
}

func TestPool_AssignExhausted(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	if _, err := p.Assign(ctx, 1); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if _, err := p.Assign(ctx, 2); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Assign() on drained pool error = %v, want ErrPoolExhausted", err)
	}
}

func TestPool_AssignConcurrent(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()

	const slots = 5
	const owners = 12
	seedSlots(t, p, slots)

	var wg sync.WaitGroup
	results := make([]error, owners)
	for i := 0; i < owners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = p.Assign(ctx, int64(i+1))
		}(i)
	}
	wg.Wait()

	won, exhausted := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrPoolExhausted):
			exhausted++
		default:
			t.Errorf("Assign() unexpected error = %v", err)
		}
	}
	if won != slots {
		t.Errorf("winners = %d, want %d", won, slots)
	}
	if exhausted != owners-slots {
		t.Errorf("exhausted = %d, want %d", exhausted, owners-slots)
	}

	// Every assigned slot must belong to exactly one owner.
	assigned, err := p.ListByState(ctx, storage.SlotAssigned)
	if err != nil {
		t.Fatalf("ListByState() error = %v", err)
	}
	seen := make(map[int64]bool)
	for _, slot := range assigned {
		if slot.AssignedOwnerID == nil {
			t.Fatalf("assigned slot %d has no owner", slot.ID)
		}
		if seen[*slot.AssignedOwnerID] {
			t.Errorf("owner %d holds more than one slot", *slot.AssignedOwnerID)
		}
		seen[*slot.AssignedOwnerID] = true
	}
}

func TestPool_AssignConcurrentSameOwner(t *testing.T) {
	p, _, bindings := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 2)

	var wg sync.WaitGroup
	results := make([]*storage.IndexSlot, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Assign(ctx, 42)
		}(i)
	}
	wg.Wait()

	// Both callers get the same slot back; neither sees an error from
	// the binding unique constraint.
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Assign() call %d error = %v", i, err)
		}
	}
	if results[0].ID != results[1].ID {
		t.Errorf("concurrent assigns returned slots %d and %d, want the same slot", results[0].ID, results[1].ID)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Assigned != 1 {
		t.Errorf("Stats() assigned = %d, want 1", stats.Assigned)
	}
	binding, err := bindings.GetByOwner(ctx, 42)
	if err != nil {
		t.Fatalf("GetByOwner() error = %v", err)
	}
	if binding.ExternalIndexID != results[0].ExternalIndexID {
		t.Errorf("binding index = %s, want %s", binding.ExternalIndexID, results[0].ExternalIndexID)
	}
}

// contendingBindings makes the first Insert lose to a simulated
// concurrent assignment that binds the same owner to the rival slot
// just before the insert lands.
type contendingBindings struct {
	storage.BindingStore
	slots *storage.SlotRepo
	rival *storage.IndexSlot
	fired bool
}

func (c *contendingBindings) Insert(ctx context.Context, b *storage.KnowledgeBaseBinding) error {
	if !c.fired {
		c.fired = true
		if _, err := c.slots.AssignToOwner(ctx, c.rival.ID, b.OwnerID); err != nil {
			return err
		}
		if err := c.BindingStore.Insert(ctx, &storage.KnowledgeBaseBinding{
			OwnerID:         b.OwnerID,
			ExternalIndexID: c.rival.ExternalIndexID,
			WorkspaceID:     b.WorkspaceID,
			DisplayName:     b.DisplayName,
			State:           storage.BindingActive,
		}); err != nil {
			return err
		}
	}
	return c.BindingStore.Insert(ctx, b)
}

func TestPool_AssignLosesBindingRace(t *testing.T) {
	base, slots, bindings := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, base, 2)

	all, err := base.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	rival := all[1]
	p := New(slots, &contendingBindings{BindingStore: bindings, slots: slots, rival: rival}, "ws-test", "cate-default")

	// The losing attempt hands back the rival's slot instead of failing
	// on the binding conflict.
	got, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got.ExternalIndexID != rival.ExternalIndexID {
		t.Errorf("Assign() slot = %s, want %s", got.ExternalIndexID, rival.ExternalIndexID)
	}
	if got.AssignedOwnerID == nil || *got.AssignedOwnerID != 42 {
		t.Errorf("Assign() owner = %v, want 42", got.AssignedOwnerID)
	}

	// The candidate the loser had taken goes back to the pool.
	stats, err := base.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := Stats{Total: 2, Available: 1, Assigned: 1}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

func TestPool_AssignForeignBindingConflict(t *testing.T) {
	p, _, bindings := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	// An owner already bound outside the pool (the shared default index)
	// cannot be assigned a slot; the conflict surfaces and the slot is
	// not left half-assigned.
	if err := bindings.Insert(ctx, &storage.KnowledgeBaseBinding{
		OwnerID:         42,
		ExternalIndexID: "idx-shared",
		WorkspaceID:     "ws-test",
		DisplayName:     "kb_42",
		State:           storage.BindingActive,
	}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if _, err := p.Assign(ctx, 42); err == nil {
		t.Fatal("Assign() with existing shared binding succeeded, want error")
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Available != 1 || stats.Assigned != 0 {
		t.Errorf("Stats() = %+v, want the slot back in the pool", stats)
	}
}

func TestPool_ReleaseAndReassign(t *testing.T) {
	p, _, bindings := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	slot, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if err := p.Release(ctx, 42); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := bindings.GetByOwner(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("binding after release error = %v, want ErrNotFound", err)
	}

	// Released slot is reusable by another owner.
	reassigned, err := p.Assign(ctx, 7)
	if err != nil {
		t.Fatalf("Assign() after release error = %v", err)
	}
	if reassigned.ID != slot.ID {
		t.Errorf("reassigned slot = %d, want %d", reassigned.ID, slot.ID)
	}

	// Releasing an owner without a slot is a no-op.
	if err := p.Release(ctx, 42); err != nil {
		t.Errorf("Release() idempotent call error = %v", err)
	}
}

func TestPool_DisableEnable(t *testing.T) {
	p, slots, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 2)

	all, err := p.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if err := p.Disable(ctx, all[0].ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	got, err := slots.GetByID(ctx, all[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.State != storage.SlotDisabled {
		t.Errorf("disabled slot state = %v, want %v", got.State, storage.SlotDisabled)
	}

	// A disabled slot is never picked for assignment.
	if err := p.Disable(ctx, all[1].ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if _, err := p.Assign(ctx, 42); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Assign() with all disabled error = %v, want ErrPoolExhausted", err)
	}

	if err := p.Enable(ctx, all[0].ID); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	got, err = slots.GetByID(ctx, all[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.State != storage.SlotAvailable {
		t.Errorf("enabled slot state = %v, want %v", got.State, storage.SlotAvailable)
	}
}

func TestPool_EnableRestoresAssignment(t *testing.T) {
	p, slots, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	slot, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := p.Disable(ctx, slot.ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if err := p.Enable(ctx, slot.ID); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	got, err := slots.GetByID(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.State != storage.SlotAssigned {
		t.Errorf("re-enabled slot state = %v, want %v (owner still holds it)", got.State, storage.SlotAssigned)
	}
}

func TestPool_DeleteInUse(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	slot, err := p.Assign(ctx, 42)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := p.Delete(ctx, slot.ID); !errors.Is(err, ErrSlotInUse) {
		t.Errorf("Delete() assigned slot error = %v, want ErrSlotInUse", err)
	}

	if err := p.Release(ctx, 42); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := p.Delete(ctx, slot.ID); err != nil {
		t.Errorf("Delete() released slot error = %v", err)
	}
}

func TestPool_CategoryFor(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 1)

	// No slot: the configured default applies.
	category, err := p.CategoryFor(ctx, 7)
	if err != nil {
		t.Fatalf("CategoryFor() error = %v", err)
	}
	if category != "cate-default" {
		t.Errorf("CategoryFor() = %s, want cate-default", category)
	}

	// Assigned slot: the slot's category wins.
	if _, err := p.Assign(ctx, 42); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	category, err = p.CategoryFor(ctx, 42)
	if err != nil {
		t.Fatalf("CategoryFor() error = %v", err)
	}
	if category != "cate-001" {
		t.Errorf("CategoryFor() = %s, want cate-001", category)
	}
}

func TestPool_CategoryForNoDefault(t *testing.T) {
	db, err := storage.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}
	p := New(storage.NewSlotRepo(db), storage.NewBindingRepo(db), "ws-test", "")

	if _, err := p.CategoryFor(context.Background(), 7); !errors.Is(err, ErrNoCategoryConfigured) {
		t.Errorf("CategoryFor() error = %v, want ErrNoCategoryConfigured", err)
	}
}

func TestPool_Stats(t *testing.T) {
	p, _, _ := newTestPool(t)
	ctx := context.Background()
	seedSlots(t, p, 3)

	if _, err := p.Assign(ctx, 42); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	all, err := p.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := p.Disable(ctx, all[2].ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := Stats{Total: 3, Available: 1, Assigned: 1, Disabled: 1}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}
