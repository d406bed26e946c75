package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meheroob/stremlit-agentic-ai/internal/ingest"
	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

type mockSearcher struct {
	results []retrieval.Result
	err     error

	mu      sync.Mutex
	gotTopK int
}

func (m *mockSearcher) Retrieve(_ context.Context, _ string, topK int) ([]retrieval.Result, error) {
	m.mu.Lock()
	m.gotTopK = topK
	m.mu.Unlock()
	return m.results, m.err
}

const adminToken = "admin-token"

func setupAdminHandler(t *testing.T, searcher *mockSearcher) (http.Handler, *storage.Store, *retrieval.MemoryStore) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if searcher == nil {
		searcher = &mockSearcher{}
	}
	corpus := retrieval.NewMemoryStore()
	h := NewAdminHandler(AdminDeps{Store: store, Corpus: corpus, Searcher: searcher, Token: adminToken})
	return h, store, corpus
}

func TestAdmin_NoAuth(t *testing.T) {
	h, _, _ := setupAdminHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus", "", "wrong"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdmin_RebuildQueuesJob(t *testing.T) {
	h, store, _ := setupAdminHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/corpus/rebuild", `{"prefix":"reference/"}`, adminToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["job_id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	job, err := store.GetJob(resp["job_id"])
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != ingest.JobTypeCorpusRebuild {
		t.Errorf("job type = %q, want %q", job.Type, ingest.JobTypeCorpusRebuild)
	}
	if !strings.Contains(job.PayloadJSON, "reference/") {
		t.Errorf("payload = %s, want prefix", job.PayloadJSON)
	}
}

func TestAdmin_RebuildWithoutBody(t *testing.T) {
	h, _, _ := setupAdminHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/corpus/rebuild", "", adminToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
}

func TestAdmin_GetJob(t *testing.T) {
	h, store, _ := setupAdminHandler(t, nil)
	id, err := ingest.EnqueueRebuild(store, "")
	if err != nil {
		t.Fatalf("EnqueueRebuild: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/jobs/"+id, "", adminToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var job jobView
	json.NewDecoder(rr.Body).Decode(&job)
	if job.ID != id || job.Status != "pending" {
		t.Errorf("job = %+v", job)
	}
}

func TestAdmin_GetJob_NotFound(t *testing.T) {
	h, _, _ := setupAdminHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/jobs/nope", "", adminToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestAdmin_CorpusStats(t *testing.T) {
	h, store, corpus := setupAdminHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus", "", adminToken))
	var empty map[string]any
	json.NewDecoder(rr.Body).Decode(&empty)
	if empty["rows"] != float64(0) || empty["last_build"] != nil {
		t.Fatalf("empty stats = %v", empty)
	}

	corpus.Rebuild(context.Background(), []retrieval.CorpusRow{
		{ChunkID: "0", ChunkText: "a", Embedding: []float64{1, 0}},
		{ChunkID: "1", ChunkText: "b", Embedding: []float64{0, 1}},
	})
	now := time.Now().UTC()
	store.RecordBuild(storage.CorpusBuild{ID: "b1", StartedAt: now, FinishedAt: now, Documents: 1, Chunks: 2, Dimensions: 2})

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus", "", adminToken))
	var stats corpusStats
	json.NewDecoder(rr.Body).Decode(&stats)
	if stats.Rows != 2 {
		t.Errorf("rows = %d, want 2", stats.Rows)
	}
	if stats.LastBuild == nil || stats.LastBuild.ID != "b1" || stats.LastBuild.Chunks != 2 {
		t.Errorf("last_build = %+v", stats.LastBuild)
	}
}

func TestAdmin_Search(t *testing.T) {
	searcher := &mockSearcher{results: []retrieval.Result{{ChunkID: "4", ChunkText: "state pension age", Score: 0.87}}}
	h, _, _ := setupAdminHandler(t, searcher)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus/search?q=pension+age&top_k=3", "", adminToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body struct {
		Results []searchHit `json:"results"`
	}
	json.NewDecoder(rr.Body).Decode(&body)
	if len(body.Results) != 1 || body.Results[0].ChunkID != "4" || body.Results[0].Score != 0.87 {
		t.Errorf("results = %+v", body.Results)
	}
	if searcher.gotTopK != 3 {
		t.Errorf("topK = %d, want 3", searcher.gotTopK)
	}
}

func TestAdmin_Search_Validation(t *testing.T) {
	h, _, _ := setupAdminHandler(t, nil)

	for _, url := range []string{"/corpus/search", "/corpus/search?q=x&top_k=0", "/corpus/search?q=x&top_k=abc"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, url, "", adminToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", url, rr.Code, http.StatusBadRequest)
		}
	}
}

func TestAdmin_Search_EmptyCorpus(t *testing.T) {
	h, _, _ := setupAdminHandler(t, &mockSearcher{err: retrieval.ErrEmptyCorpus})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus/search?q=x", "", adminToken))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestAdmin_Search_Failure(t *testing.T) {
	h, _, _ := setupAdminHandler(t, &mockSearcher{err: errors.New("embed failed")})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/corpus/search?q=x", "", adminToken))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestAdmin_ListInteractions(t *testing.T) {
	h, store, _ := setupAdminHandler(t, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/interactions", "", adminToken))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty body = %s, want []", rr.Body.String())
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"i1", "i2", "i3"} {
		err := store.SaveInteraction(storage.Interaction{
			ID:         id,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			SessionID:  "s1",
			CustomerID: "C001",
			Domain:     "Pensions",
			UserQuery:  "q",
			Response:   "a",
			ChunkIDs:   `["1","2"]`,
		})
		if err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/interactions?limit=2", "", adminToken))
	var views []interactionView
	json.NewDecoder(rr.Body).Decode(&views)
	if len(views) != 2 {
		t.Fatalf("got %d interactions, want 2", len(views))
	}
	if views[0].ID != "i3" {
		t.Errorf("first = %q, want newest i3", views[0].ID)
	}
	if len(views[0].ChunkIDs) != 2 {
		t.Errorf("chunk_ids = %v", views[0].ChunkIDs)
	}
}

func TestRouter_MountsAdmin(t *testing.T) {
	admin, _, _ := setupAdminHandler(t, nil)
	public, _ := setupChatHandler(t, nil)
	h := NewRouter(public, admin)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/admin/corpus", "", adminToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", rr.Code, http.StatusOK)
	}
}
