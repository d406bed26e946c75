package api

import (
	"encoding/json"
	"time"

	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

type jobView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func newJobView(j storage.Job) jobView {
	payload := json.RawMessage(j.PayloadJSON)
	if !json.Valid(payload) {
		payload = json.RawMessage("{}")
	}
	return jobView{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Payload:     payload,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
	}
}

type buildView struct {
	ID         string `json:"id"`
	Prefix     string `json:"prefix"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
	Dimensions int    `json:"dimensions"`
}

func newBuildView(b storage.CorpusBuild) *buildView {
	return &buildView{
		ID:         b.ID,
		Prefix:     b.Prefix,
		StartedAt:  b.StartedAt.Format(time.RFC3339),
		FinishedAt: b.FinishedAt.Format(time.RFC3339),
		Documents:  b.Documents,
		Chunks:     b.Chunks,
		Dimensions: b.Dimensions,
	}
}

type corpusStats struct {
	Rows      int        `json:"rows"`
	LastBuild *buildView `json:"last_build"`
}

type interactionView struct {
	ID         string   `json:"id"`
	CreatedAt  string   `json:"created_at"`
	SessionID  string   `json:"session_id"`
	CustomerID string   `json:"customer_id"`
	Domain     string   `json:"domain"`
	Query      string   `json:"query"`
	Response   string   `json:"response"`
	ChunkIDs   []string `json:"chunk_ids"`
	Fallback   bool     `json:"fallback"`
}

func newInteractionView(i storage.Interaction) interactionView {
	var ids []string
	if err := json.Unmarshal([]byte(i.ChunkIDs), &ids); err != nil || ids == nil {
		ids = []string{}
	}
	return interactionView{
		ID:         i.ID,
		CreatedAt:  i.CreatedAt.Format(time.RFC3339),
		SessionID:  i.SessionID,
		CustomerID: i.CustomerID,
		Domain:     i.Domain,
		Query:      i.UserQuery,
		Response:   i.Response,
		ChunkIDs:   ids,
		Fallback:   i.Fallback,
	}
}

type searchHit struct {
	ChunkID   string  `json:"chunk_id"`
	ChunkText string  `json:"chunk_text"`
	Score     float64 `json:"score"`
}

func newSearchHits(results []retrieval.Result) []searchHit {
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{ChunkID: r.ChunkID, ChunkText: r.ChunkText, Score: r.Score}
	}
	return hits
}
