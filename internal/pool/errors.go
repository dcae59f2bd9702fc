package pool

import "errors"

var (
	// ErrDuplicateSlot is returned when seeding an external index id that is already pooled.
	ErrDuplicateSlot = errors.New("index already exists in pool")
	// ErrPoolExhausted is returned when no AVAILABLE slot is left to assign.
	ErrPoolExhausted = errors.New("no available knowledge base index in pool")
	// ErrSlotInUse is returned when deleting or enabling a slot that is still assigned.
	ErrSlotInUse = errors.New("slot is assigned to an owner")
	// ErrNoCategoryConfigured is returned when neither the owner's slot nor the
	// configuration provides an upload category.
	ErrNoCategoryConfigured = errors.New("no category configured")
)
