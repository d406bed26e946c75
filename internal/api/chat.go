package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meheroob/stremlit-agentic-ai/internal/customer"
	"github.com/meheroob/stremlit-agentic-ai/internal/pipeline"
	"github.com/meheroob/stremlit-agentic-ai/internal/session"
)

const customerNotFoundMessage = "CustomerID not found. Please try again."

// CustomerLookup finds customers by ID.
type CustomerLookup interface {
	Lookup(ctx context.Context, id string) (*customer.Customer, error)
}

// SessionStore creates and ends chat sessions.
type SessionStore interface {
	SessionResolver
	Create(c *customer.Customer) (*session.Session, string, error)
	End(ctx context.Context, id string)
}

// Answerer runs one chat turn.
type Answerer interface {
	Answer(ctx context.Context, s *session.Session, query string) (pipeline.Reply, error)
}

// ChatDeps holds dependencies for the public chat API.
type ChatDeps struct {
	Customers CustomerLookup
	Sessions  SessionStore
	Assistant Answerer
}

type createSessionRequest struct {
	CustomerID string `json:"customer_id"`
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	Token        string `json:"token"`
	Greeting     string `json:"greeting"`
	HasPension   bool   `json:"has_pension"`
	HasInsurance bool   `json:"has_insurance"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	InteractionID string   `json:"interaction_id"`
	Domain        string   `json:"domain"`
	Answer        string   `json:"answer"`
	Fallback      bool     `json:"fallback"`
	ChunkIDs      []string `json:"chunk_ids"`
}

// NewChatHandler returns the customer-facing API: session login, chat turns
// and logout.
func NewChatHandler(deps ChatDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/v1/sessions", handleCreateSession(deps))

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(deps.Sessions))
		r.Post("/v1/chat", handleChat(deps))
		r.Delete("/v1/sessions/current", handleEndSession(deps))
	})

	return r
}

func handleCreateSession(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		id := strings.TrimSpace(req.CustomerID)
		if id == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "customer_id is required")
			return
		}

		c, err := deps.Customers.Lookup(r.Context(), id)
		switch {
		case errors.Is(err, customer.ErrCustomerNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", customerNotFoundMessage)
			return
		case err != nil:
			slog.Error("customer lookup failed", "error", err)
			httpError(w, http.StatusServiceUnavailable, "api_error", "customer data is unavailable right now")
			return
		}

		s, token, err := deps.Sessions.Create(c)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}

		greeting, _ := pipeline.Greeting(c)
		writeJSON(w, http.StatusCreated, createSessionResponse{
			SessionID:    s.ID,
			Token:        token,
			Greeting:     greeting,
			HasPension:   c.HasPension(),
			HasInsurance: c.HasInsurance(),
		})
	}
}

func handleChat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		msg := strings.TrimSpace(req.Message)
		if msg == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		s := sessionFrom(r.Context())
		reply, err := deps.Assistant.Answer(r.Context(), s, msg)
		if err != nil {
			slog.Error("chat turn failed", "session_id", s.ID, "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "failed to generate an answer, please try again")
			return
		}

		chunkIDs := reply.ChunkIDs
		if chunkIDs == nil {
			chunkIDs = []string{}
		}
		writeJSON(w, http.StatusOK, chatResponse{
			InteractionID: reply.InteractionID,
			Domain:        string(reply.Domain),
			Answer:        reply.Text,
			Fallback:      reply.Fallback,
			ChunkIDs:      chunkIDs,
		})
	}
}

func handleEndSession(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Sessions.End(r.Context(), sessionFrom(r.Context()).ID)
		w.WriteHeader(http.StatusNoContent)
	}
}
