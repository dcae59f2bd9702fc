package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/uestcbean/phoebe-service/internal/gateway"
	"github.com/uestcbean/phoebe-service/internal/kbclient/mocks"
	"github.com/uestcbean/phoebe-service/internal/pool"
	"github.com/uestcbean/phoebe-service/internal/scheduler"
	"github.com/uestcbean/phoebe-service/internal/storage"
)

func newTestRouter(t *testing.T) http.Handler {
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
	notes := storage.NewNoteRepo(db)
	ledger := storage.NewSyncRecordRepo(db)

	client := mocks.NewMockClient(gomock.NewController(t))
	p := pool.New(slots, bindings, "ws-test", "cate-default")
	gw := gateway.New(client, bindings, slots, ledger, p, gateway.Config{
		WorkspaceID: "ws-test", DefaultIndexID: "idx-default", RetrieveTopK: 5,
	})
	sched := scheduler.New(notes, ledger, gw, scheduler.Config{Enabled: true})

	return NewRouter(&Deps{
		DB:        db,
		Pool:      p,
		Scheduler: sched,
		Ledger:    ledger,
		Notes:     notes,
		Updater:   gw,
		Retriever: gw,
	})
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("health status = %v, want healthy", resp["status"])
	}
}

func TestRouter_PoolLifecycle(t *testing.T) {
	router := newTestRouter(t)

	// Seed a slot.
	w := doRequest(t, router, http.MethodPost, "/api/admin/pool",
		`{"externalIndexId":"idx-001","categoryId":"cate-001"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed status = %d, want 201: %s", w.Code, w.Body.String())
	}

	// Duplicate seed conflicts.
	w = doRequest(t, router, http.MethodPost, "/api/admin/pool",
		`{"externalIndexId":"idx-001","categoryId":"cate-001"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate seed status = %d, want 409", w.Code)
	}

	// Assign it.
	w = doRequest(t, router, http.MethodPost, "/api/admin/pool/assign", `{"ownerId":42}`)
	if w.Code != http.StatusOK {
		t.Fatalf("assign status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var slot map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &slot); err != nil {
		t.Fatalf("invalid assign body: %v", err)
	}
	if slot["assignedOwnerId"] != float64(42) {
		t.Errorf("assigned owner = %v, want 42", slot["assignedOwnerId"])
	}

	// A second assign drains the pool.
	w = doRequest(t, router, http.MethodPost, "/api/admin/pool/assign", `{"ownerId":7}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("exhausted assign status = %d, want 503", w.Code)
	}

	// Stats reflect the assignment.
	w = doRequest(t, router, http.MethodGet, "/api/admin/pool/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", w.Code)
	}
	var stats pool.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats body: %v", err)
	}
	if stats.Total != 1 || stats.Assigned != 1 {
		t.Errorf("stats = %+v, want 1 total 1 assigned", stats)
	}

	// Owner lookup finds the held slot.
	w = doRequest(t, router, http.MethodGet, "/api/admin/pool/owners/42", "")
	if w.Code != http.StatusOK {
		t.Errorf("owner lookup status = %d, want 200: %s", w.Code, w.Body.String())
	}

	// Release it.
	w = doRequest(t, router, http.MethodPost, "/api/admin/pool/release", `{"ownerId":42}`)
	if w.Code != http.StatusNoContent {
		t.Errorf("release status = %d, want 204: %s", w.Code, w.Body.String())
	}

	// After release the owner holds nothing.
	w = doRequest(t, router, http.MethodGet, "/api/admin/pool/owners/42", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("owner lookup after release status = %d, want 404", w.Code)
	}
}

func TestRouter_PoolListFilter(t *testing.T) {
	router := newTestRouter(t)

	for _, body := range []string{
		`{"externalIndexId":"idx-a","categoryId":"c"}`,
		`{"externalIndexId":"idx-b","categoryId":"c"}`,
	} {
		if w := doRequest(t, router, http.MethodPost, "/api/admin/pool", body); w.Code != http.StatusCreated {
			t.Fatalf("seed status = %d: %s", w.Code, w.Body.String())
		}
	}
	if w := doRequest(t, router, http.MethodPost, "/api/admin/pool/assign", `{"ownerId":1}`); w.Code != http.StatusOK {
		t.Fatalf("assign status = %d", w.Code)
	}

	w := doRequest(t, router, http.MethodGet, "/api/admin/pool?state=AVAILABLE", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var slots []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &slots); err != nil {
		t.Fatalf("invalid list body: %v", err)
	}
	if len(slots) != 1 {
		t.Errorf("filtered list len = %d, want 1", len(slots))
	}
}

func TestRouter_SyncTriggerIsAsync(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/admin/sync/", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("sync trigger status = %d, want 202: %s", w.Code, w.Body.String())
	}
}

func TestRouter_Retrieve(t *testing.T) {
	router := newTestRouter(t)

	// Owner without a binding gets an empty node list, not an error.
	w := doRequest(t, router, http.MethodPost, "/api/kb/retrieve", `{"ownerId":42,"query":"anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("retrieve status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Nodes []gateway.RetrievedNode `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid retrieve body: %v", err)
	}
	if len(resp.Nodes) != 0 {
		t.Errorf("nodes = %+v, want empty", resp.Nodes)
	}

	// Missing query is rejected.
	w = doRequest(t, router, http.MethodPost, "/api/kb/retrieve", `{"ownerId":42}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("retrieve without query status = %d, want 400", w.Code)
	}
}

func TestRouter_SyncNoteNotFound(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/admin/sync/notes/999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("resync of unknown note status = %d, want 404: %s", w.Code, w.Body.String())
	}
}

func TestRouter_SyncHistory(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/admin/sync/notes/1/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, router, http.MethodGet, "/api/admin/sync/notes/abc/history", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad note id status = %d, want 400", w.Code)
	}
}
