// Package scheduler bulk-drives note uploads to the knowledge base.
// Runs are stateless batch jobs: each note ends succeeded, failed or
// skipped, and the only persisted state is what the ledger records.
package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/uestcbean/phoebe-service/internal/contextutil"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// Uploader pushes a single note to the knowledge base and reports the
// outcome as a record. Implemented by the gateway.
type Uploader interface {
	Upload(ctx context.Context, note *storage.Note) *storage.SyncRecord
}

// Config carries the scheduler's pacing settings.
type Config struct {
	// Enabled gates all sync runs; when false every run is a no-op.
	Enabled bool
	// Delay is the minimum spacing between remote uploads in a full run.
	Delay time.Duration
	// OwnerDelay is the spacing used by per-owner runs.
	OwnerDelay time.Duration
}

// Result accumulates the per-note outcomes of one run.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Scheduler orchestrates bulk and per-owner note synchronization.
type Scheduler struct {
	notes    storage.NoteStore
	ledger   storage.SyncRecordStore
	uploader Uploader
	cfg      Config
}

// New creates a Scheduler.
func New(notes storage.NoteStore, ledger storage.SyncRecordStore, uploader Uploader, cfg Config) *Scheduler {
	return &Scheduler{
		notes:    notes,
		ledger:   ledger,
		uploader: uploader,
		cfg:      cfg,
	}
}

// SyncAll uploads every ACTIVE note that is not already synced, across
// all owners, spacing remote calls to respect the service's rate
// ceiling. Cancellation stops further notes without losing outcomes
// already recorded; the counts cover what ran before the stop.
func (s *Scheduler) SyncAll(ctx context.Context) Result {
	logger := contextutil.LoggerFromContext(ctx)

	var result Result
	if !s.cfg.Enabled {
		logger.InfoContext(ctx, "knowledge base sync is disabled, skipping")
		return result
	}

	started := time.Now()
	notes, err := s.notes.ListActive(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to enumerate notes, ending run", "error", err)
		return result
	}
	if len(notes) == 0 {
		logger.InfoContext(ctx, "no active notes found to sync")
		return result
	}

	logger.InfoContext(ctx, "starting notes sync", "total", len(notes))
	result = s.run(ctx, notes, s.cfg.Delay, true)

	logger.InfoContext(ctx, "completed notes sync",
		"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped,
		"duration", time.Since(started).Round(time.Millisecond))
	return result
}

// RunPeriodic runs SyncAll immediately and then again on every interval
// tick until ctx is cancelled, so notes authored after startup still get
// uploaded without a manual trigger. An interval of zero or less means
// the initial run only.
func (s *Scheduler) RunPeriodic(ctx context.Context, interval time.Duration) {
	logger := contextutil.LoggerFromContext(ctx)

	s.SyncAll(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "periodic sync stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			s.SyncAll(ctx)
		}
	}
}

// SyncForOwner uploads one owner's ACTIVE notes that are not already
// synced. Returns the number of successful uploads.
func (s *Scheduler) SyncForOwner(ctx context.Context, ownerID int64) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if !s.cfg.Enabled {
		logger.WarnContext(ctx, "knowledge base sync is disabled")
		return 0, nil
	}

	notes, err := s.notes.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(notes) == 0 {
		logger.InfoContext(ctx, "no active notes found for owner", "owner_id", ownerID)
		return 0, nil
	}

	logger.InfoContext(ctx, "starting owner notes sync", "owner_id", ownerID, "total", len(notes))
	result := s.run(ctx, notes, s.cfg.OwnerDelay, true)

	logger.InfoContext(ctx, "completed owner notes sync", "owner_id", ownerID,
		"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result.Succeeded, nil
}

// ForceSyncForOwner re-uploads every ACTIVE note of an owner without
// consulting the ledger. Previously synced notes get fresh remote
// documents, so duplicates are possible; this is the administrative
// escape hatch, not the normal path.
func (s *Scheduler) ForceSyncForOwner(ctx context.Context, ownerID int64) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if !s.cfg.Enabled {
		logger.WarnContext(ctx, "knowledge base sync is disabled")
		return 0, nil
	}

	notes, err := s.notes.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(notes) == 0 {
		logger.InfoContext(ctx, "no active notes found for owner", "owner_id", ownerID)
		return 0, nil
	}

	logger.InfoContext(ctx, "starting forced owner notes sync", "owner_id", ownerID, "total", len(notes))
	result := s.run(ctx, notes, s.cfg.OwnerDelay, false)

	logger.InfoContext(ctx, "completed forced owner notes sync", "owner_id", ownerID, "succeeded", result.Succeeded)
	return result.Succeeded, nil
}

// run walks notes sequentially. The limiter provides both the fixed
// inter-request spacing and a cancellation point: Wait returns early
// when ctx is done, ending the run between notes, never mid-record.
func (s *Scheduler) run(ctx context.Context, notes []*storage.Note, delay time.Duration, consultLedger bool) Result {
	logger := contextutil.LoggerFromContext(ctx)

	limiter := rate.NewLimiter(rate.Every(delay), 1)

	var result Result
	for _, note := range notes {
		select {
		case <-ctx.Done():
			logger.WarnContext(ctx, "sync cancelled", "reason", ctx.Err())
			return result
		default:
		}

		if consultLedger {
			synced, err := s.ledger.IsSynced(ctx, note.ID)
			if err != nil {
				result.Failed++
				logger.ErrorContext(ctx, "failed to check sync state", "note_id", note.ID, "error", err)
				continue
			}
			if synced {
				result.Skipped++
				logger.DebugContext(ctx, "note already synced, skipping", "note_id", note.ID)
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			logger.WarnContext(ctx, "sync cancelled during delay", "reason", err)
			return result
		}

		rec := s.uploader.Upload(ctx, note)
		if rec != nil && rec.Outcome == storage.SyncSuccess {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result
}
