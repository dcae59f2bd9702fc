// Package gateway drives the remote knowledge base protocol for single
// notes: the four-step upload pipeline (lease, byte transfer, file
// registration, index ingestion), document deletion, and retrieval.
// Every public operation returns a well-formed record or result; remote
// failures never propagate as errors from Upload, Update or Retrieve.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/uestcbean/phoebe-service/internal/contextutil"
	"github.com/uestcbean/phoebe-service/internal/kbclient"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// fileParser is the parser hint passed when registering uploaded documents.
const fileParser = "DASHSCOPE_DOCMIND"

// indexSourceType identifies data-center files as the ingestion source.
const indexSourceType = "DATA_CENTER_FILE"

// CategoryResolver supplies the upload category for an owner.
// Implemented by the index pool.
type CategoryResolver interface {
	CategoryFor(ctx context.Context, ownerID int64) (string, error)
}

// Config carries the gateway's knowledge base settings.
type Config struct {
	WorkspaceID      string
	DefaultIndexID   string
	EmbeddingModel   string
	RetrieveTopK     int
	RetrieveMinScore float64
}

// Gateway implements the note sync and retrieval operations against the
// remote knowledge base.
type Gateway struct {
	client     kbclient.Client
	bindings   storage.BindingStore
	slots      storage.SlotStore
	ledger     storage.SyncRecordStore
	categories CategoryResolver
	cfg        Config
}

// New creates a Gateway. The remote client is constructed once at
// startup and injected; the gateway never builds its own.
func New(client kbclient.Client, bindings storage.BindingStore, slots storage.SlotStore,
	ledger storage.SyncRecordStore, categories CategoryResolver, cfg Config) *Gateway {
	return &Gateway{
		client:     client,
		bindings:   bindings,
		slots:      slots,
		ledger:     ledger,
		categories: categories,
		cfg:        cfg,
	}
}

// EnsureBinding returns the owner's knowledge base binding, creating it
// if needed. Resolution order: existing binding, the owner's
// pool-assigned index, the configured shared default index, and as a
// last resort a freshly provisioned remote index named with a short
// slug (the remote API caps index names at 20 characters).
func (g *Gateway) EnsureBinding(ctx context.Context, ownerID int64) (*storage.KnowledgeBaseBinding, error) {
	logger := contextutil.LoggerFromContext(ctx)

	existing, err := g.bindings.GetByOwner(ctx, ownerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// Pool-assigned index first.
	slot, err := g.slots.GetByOwner(ctx, ownerID)
	if err == nil {
		logger.InfoContext(ctx, "using assigned index from pool", "owner_id", ownerID, "index_id", slot.ExternalIndexID)
		name := slot.DisplayName
		if name == "" {
			name = fmt.Sprintf("kb_%d", ownerID)
		}
		return g.createBinding(ctx, ownerID, slot.ExternalIndexID, name)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// Shared default index.
	if g.cfg.DefaultIndexID != "" {
		logger.WarnContext(ctx, "owner has no assigned index, using default index", "owner_id", ownerID, "index_id", g.cfg.DefaultIndexID)
		return g.createBinding(ctx, ownerID, g.cfg.DefaultIndexID, "default_kb")
	}

	// Last resort: provision a brand-new remote index.
	name := fmt.Sprintf("kb_%d", ownerID)
	logger.WarnContext(ctx, "no index available, creating remote index", "owner_id", ownerID, "name", name)

	indexID, err := g.client.CreateRemoteIndex(ctx, name, g.cfg.EmbeddingModel,
		fmt.Sprintf("Knowledge base for owner %d", ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create remote index for owner %d: %w", ownerID, err)
	}

	logger.InfoContext(ctx, "created remote index", "owner_id", ownerID, "index_id", indexID)
	return g.createBinding(ctx, ownerID, indexID, name)
}

func (g *Gateway) createBinding(ctx context.Context, ownerID int64, indexID, name string) (*storage.KnowledgeBaseBinding, error) {
	binding := &storage.KnowledgeBaseBinding{
		OwnerID:         ownerID,
		ExternalIndexID: indexID,
		WorkspaceID:     g.cfg.WorkspaceID,
		DisplayName:     name,
		State:           storage.BindingActive,
	}
	if err := g.bindings.Insert(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// Upload pushes one note through the full pipeline: lease, byte
// transfer, file registration, index ingestion. The returned record is
// always appended to the ledger; this method never returns an error.
// Any failure, transport or application level, yields a FAILED record
// carrying the triggering message.
func (g *Gateway) Upload(ctx context.Context, note *storage.Note) *storage.SyncRecord {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "adding note to knowledge base", "note_id", note.ID, "owner_id", note.OwnerID)

	binding, err := g.EnsureBinding(ctx, note.OwnerID)
	if err != nil {
		return g.recordFailure(ctx, note, "", fmt.Sprintf("failed to resolve knowledge base: %v", err))
	}

	category, err := g.categories.CategoryFor(ctx, note.OwnerID)
	if err != nil {
		return g.recordFailure(ctx, note, binding.ExternalIndexID, fmt.Sprintf("failed to resolve category: %v", err))
	}

	content := BuildDocument(note)
	// A fresh suffix per attempt keeps forced re-uploads from colliding
	// on the remote file name.
	fileName := fmt.Sprintf("note_%d_%s.txt", note.ID, uuid.New().String()[:8])

	lease, err := g.client.ApplyUploadLease(ctx, kbclient.UploadLeaseRequest{
		CategoryID: category,
		FileName:   fileName,
		MD5:        Checksum(content),
		SizeBytes:  int64(len(content)),
	})
	if err != nil {
		return g.recordFailure(ctx, note, binding.ExternalIndexID, fmt.Sprintf("failed to get upload lease: %v", err))
	}

	logger.DebugContext(ctx, "got upload lease", "note_id", note.ID, "lease_id", lease.LeaseID, "bytes", len(content))

	if err := g.client.TransmitBytes(ctx, lease, content); err != nil {
		return g.recordFailure(ctx, note, binding.ExternalIndexID, fmt.Sprintf("failed to upload content: %v", err))
	}

	fileID, err := g.client.RegisterFile(ctx, category, lease.LeaseID, fileParser)
	if err != nil {
		return g.recordFailure(ctx, note, binding.ExternalIndexID, fmt.Sprintf("failed to register file: %v", err))
	}

	jobID, err := g.client.SubmitIndexIngestion(ctx, binding.ExternalIndexID, indexSourceType, []string{fileID})
	if err != nil {
		return g.recordFailure(ctx, note, binding.ExternalIndexID, fmt.Sprintf("failed to submit index ingestion: %v", err))
	}

	rec := &storage.SyncRecord{
		NoteID:           note.ID,
		OwnerID:          note.OwnerID,
		ExternalIndexID:  binding.ExternalIndexID,
		RemoteDocumentID: fileID,
		Outcome:          storage.SyncSuccess,
	}
	if err := g.ledger.Record(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to record successful sync", "note_id", note.ID, "error", err)
	}
	if err := g.bindings.TouchLastSync(ctx, note.OwnerID, time.Now().UTC()); err != nil {
		logger.WarnContext(ctx, "failed to update binding sync time", "owner_id", note.OwnerID, "error", err)
	}

	logger.InfoContext(ctx, "synced note to knowledge base", "note_id", note.ID, "file_id", fileID, "job_id", jobID)
	return rec
}

// Update replaces a note's remote document. The previous document is
// deleted best-effort before a fresh upload; a failed delete is logged
// and the old document stays orphaned in the remote store (the new
// upload necessarily gets a new id, so retrieval is unaffected apart
// from possible duplicates).
func (g *Gateway) Update(ctx context.Context, note *storage.Note) *storage.SyncRecord {
	logger := contextutil.LoggerFromContext(ctx)

	prior, err := g.ledger.LatestSuccessful(ctx, note.ID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && prior.RemoteDocumentID == "") {
		logger.InfoContext(ctx, "no prior sync for note, uploading as new", "note_id", note.ID)
		return g.Upload(ctx, note)
	}
	if err != nil {
		return g.recordFailure(ctx, note, "", fmt.Sprintf("failed to look up sync history: %v", err))
	}

	if !g.Delete(ctx, note.OwnerID, prior.RemoteDocumentID) {
		logger.WarnContext(ctx, "failed to delete old document, continuing with upload",
			"note_id", note.ID, "document_id", prior.RemoteDocumentID)
	}

	return g.Upload(ctx, note)
}

// Delete removes a remote document. Returns false, not an error, when
// the owner has no binding or the remote call fails.
func (g *Gateway) Delete(ctx context.Context, ownerID int64, remoteDocumentID string) bool {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := g.bindings.GetByOwner(ctx, ownerID); err != nil {
		logger.WarnContext(ctx, "no knowledge base binding for owner", "owner_id", ownerID)
		return false
	}

	if err := g.client.DeleteRemoteFile(ctx, remoteDocumentID); err != nil {
		logger.WarnContext(ctx, "failed to delete remote document", "document_id", remoteDocumentID, "error", err)
		return false
	}

	logger.InfoContext(ctx, "deleted remote document", "owner_id", ownerID, "document_id", remoteDocumentID)
	return true
}

// Retrieve queries the owner's knowledge base. An owner without a
// binding, and any remote failure, yields an empty result so chat
// serving stays available.
func (g *Gateway) Retrieve(ctx context.Context, ownerID int64, query string) RetrievalResult {
	logger := contextutil.LoggerFromContext(ctx)

	binding, err := g.bindings.GetByOwner(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.ErrorContext(ctx, "failed to look up binding", "owner_id", ownerID, "error", err)
		}
		return RetrievalResult{}
	}

	resp, err := g.client.SimilaritySearch(ctx, binding.ExternalIndexID, query, g.cfg.RetrieveTopK)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "owner_id", ownerID, "index_id", binding.ExternalIndexID, "error", err)
		return RetrievalResult{}
	}

	result := RetrievalResult{RequestID: resp.RequestID}
	for _, node := range resp.Nodes {
		if node.Score < g.cfg.RetrieveMinScore {
			continue
		}
		result.Nodes = append(result.Nodes, RetrievedNode{
			Text:             node.Text,
			Score:            node.Score,
			SourceDocumentID: metaString(node.Metadata, "docId"),
			SourceTitle:      firstMetaString(node.Metadata, "title", "docName"),
		})
	}

	logger.InfoContext(ctx, "retrieved from knowledge base", "owner_id", ownerID, "nodes", len(result.Nodes))
	return result
}

func (g *Gateway) recordFailure(ctx context.Context, note *storage.Note, indexID, message string) *storage.SyncRecord {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "failed to sync note", "note_id", note.ID, "owner_id", note.OwnerID, "error", message)

	rec := &storage.SyncRecord{
		NoteID:          note.ID,
		OwnerID:         note.OwnerID,
		ExternalIndexID: indexID,
		Outcome:         storage.SyncFailed,
		ErrorMessage:    message,
	}
	if err := g.ledger.Record(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to record failed sync", "note_id", note.ID, "error", err)
	}
	return rec
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func firstMetaString(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := metaString(meta, key); s != "" {
			return s
		}
	}
	return ""
}
