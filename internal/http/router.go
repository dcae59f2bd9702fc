package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/uestcbean/phoebe-service/internal/handlers"
	"github.com/uestcbean/phoebe-service/internal/pool"
	"github.com/uestcbean/phoebe-service/internal/scheduler"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB        *sql.DB
	Pool      *pool.Pool
	Scheduler *scheduler.Scheduler
	Ledger    storage.SyncRecordStore
	Notes     storage.NoteStore
	Updater   handlers.Updater
	Retriever handlers.Retriever
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	poolHandler := handlers.NewPoolHandler(deps.Pool)
	syncHandler := handlers.NewSyncHandler(deps.Scheduler, deps.Ledger, deps.Notes, deps.Updater)
	retrieveHandler := handlers.NewRetrieveHandler(deps.Retriever)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Method(http.MethodPost, "/kb/retrieve", retrieveHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Route("/pool", func(r chi.Router) {
				r.Get("/", poolHandler.List)
				r.Post("/", poolHandler.Seed)
				r.Post("/batch", poolHandler.BatchSeed)
				r.Get("/stats", poolHandler.Stats)
				r.Post("/assign", poolHandler.Assign)
				r.Post("/release", poolHandler.Release)
				r.Get("/owners/{ownerID}", poolHandler.Owner)
				r.Post("/{id}/disable", poolHandler.Disable)
				r.Post("/{id}/enable", poolHandler.Enable)
				r.Delete("/{id}", poolHandler.Delete)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Post("/", syncHandler.SyncAll)
				r.Post("/owners/{ownerID}", syncHandler.SyncOwner)
				r.Post("/owners/{ownerID}/force", syncHandler.ForceSyncOwner)
				r.Get("/owners/{ownerID}/history", syncHandler.OwnerHistory)
				r.Post("/notes/{noteID}", syncHandler.SyncNote)
				r.Get("/notes/{noteID}/history", syncHandler.NoteHistory)
			})
		})
	})

	return r
}
