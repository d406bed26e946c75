package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meheroob/stremlit-agentic-ai/internal/ingest"
	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 50
)

// CorpusCounter reports how many rows the corpus holds.
type CorpusCounter interface {
	Count(ctx context.Context) (int, error)
}

// Searcher runs an uncached similarity search.
type Searcher interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// AdminDeps holds dependencies for the operator API.
type AdminDeps struct {
	Store    *storage.Store
	Corpus   CorpusCounter
	Searcher Searcher
	Token    string
}

type rebuildRequest struct {
	Prefix string `json:"prefix"`
}

// NewAdminHandler returns the operator API. Every route requires the static
// bearer token.
func NewAdminHandler(deps AdminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/corpus/rebuild", handleRebuild(deps))
	r.Get("/corpus", handleCorpusStats(deps))
	r.Get("/corpus/search", handleCorpusSearch(deps))
	r.Get("/jobs/{id}", handleGetJob(deps))
	r.Get("/interactions", handleListInteractions(deps))

	return r
}

func handleRebuild(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rebuildRequest
		if r.ContentLength != 0 {
			if err := decodeBody(w, r, &req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		id, err := ingest.EnqueueRebuild(deps.Store, strings.TrimSpace(req.Prefix))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue rebuild: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": id,
			"status": "queued",
		})
	}
}

func handleGetJob(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, newJobView(job))
	}
}

func handleCorpusStats(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := loadCorpusStats(r.Context(), deps.Store, deps.Corpus)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read corpus stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func loadCorpusStats(ctx context.Context, store *storage.Store, corpus CorpusCounter) (corpusStats, error) {
	n, err := corpus.Count(ctx)
	if err != nil {
		return corpusStats{}, err
	}
	stats := corpusStats{Rows: n}
	b, err := store.LatestBuild()
	switch {
	case err == nil:
		stats.LastBuild = newBuildView(b)
	case !errors.Is(err, storage.ErrNotFound):
		return corpusStats{}, err
	}
	return stats, nil
}

func handleCorpusSearch(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		topK := defaultSearchTopK
		if s := r.URL.Query().Get("top_k"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "top_k must be a positive integer")
				return
			}
			topK = min(v, maxSearchTopK)
		}

		results, err := deps.Searcher.Retrieve(r.Context(), q, topK)
		switch {
		case errors.Is(err, retrieval.ErrEmptyCorpus):
			httpError(w, http.StatusConflict, "corpus_empty", "the corpus has not been built yet")
			return
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "search failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"results": newSearchHits(results)})
	}
}

func handleListInteractions(deps AdminDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		interactions, err := deps.Store.GetRecentInteractions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		views := make([]interactionView, len(interactions))
		for i, ix := range interactions {
			views[i] = newInteractionView(ix)
		}
		writeJSON(w, http.StatusOK, views)
	}
}
