package storage

import "time"

// SlotState is the lifecycle state of an index slot in the pool.
type SlotState string

const (
	SlotAvailable SlotState = "AVAILABLE"
	SlotAssigned  SlotState = "ASSIGNED"
	SlotDisabled  SlotState = "DISABLED"
)

// IndexSlot represents a pre-provisioned remote knowledge base index
// that can be assigned to exactly one owner.
type IndexSlot struct {
	ID              int64
	ExternalIndexID string // remote index identifier (e.g. m71tmd04g9)
	CategoryID      string // remote data-center category for uploads
	DisplayName     string
	State           SlotState
	AssignedOwnerID *int64
	AssignedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BindingState is the state of an owner's knowledge base binding.
type BindingState string

const (
	BindingActive   BindingState = "ACTIVE"
	BindingDisabled BindingState = "DISABLED"
	BindingError    BindingState = "ERROR"
)

// KnowledgeBaseBinding maps an owner to their remote index. One binding
// per owner, created lazily the first time the owner needs a knowledge base.
type KnowledgeBaseBinding struct {
	ID              int64
	OwnerID         int64
	ExternalIndexID string
	WorkspaceID     string
	DisplayName     string
	State           BindingState
	LastSyncAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NoteState is the lifecycle state of a note.
type NoteState string

const (
	NoteActive  NoteState = "ACTIVE"
	NoteDeleted NoteState = "DELETED"
)

// Note is a user-authored note. The sync pipeline consumes notes
// read-only; editing belongs to the note-management subsystem.
type Note struct {
	ID         int64
	OwnerID    int64
	Source     string
	Title      string
	Content    string
	Comment    string
	Tags       []string
	State      NoteState
	CreatedAt  time.Time
	IngestedAt *time.Time
}

// SyncOutcome is the terminal outcome of one sync attempt.
type SyncOutcome string

const (
	SyncPending SyncOutcome = "PENDING"
	SyncSuccess SyncOutcome = "SUCCESS"
	SyncFailed  SyncOutcome = "FAILED"
)

// SyncRecord is one entry in the append-only sync ledger. Records are
// never updated in place; a newer record supersedes older ones.
type SyncRecord struct {
	ID               string // UUID
	NoteID           int64
	OwnerID          int64
	ExternalIndexID  string
	RemoteDocumentID string // remote file id, empty unless outcome is SUCCESS
	Outcome          SyncOutcome
	ErrorMessage     string
	SyncedAt         time.Time
}
