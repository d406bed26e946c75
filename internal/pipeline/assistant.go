// Package pipeline answers a customer's chat turn: route the question,
// gather context, compose the prompt and generate the reply.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meheroob/stremlit-agentic-ai/internal/composer"
	"github.com/meheroob/stremlit-agentic-ai/internal/customer"
	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
	"github.com/meheroob/stremlit-agentic-ai/internal/events"
	"github.com/meheroob/stremlit-agentic-ai/internal/intent"
	"github.com/meheroob/stremlit-agentic-ai/internal/session"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

const defaultTopK = 5

// Canned replies for turns that need no generation.
const (
	NoPensionReply         = "Unfortunately, you do not have a pension account with us."
	NoInsuranceReply       = "Unfortunately, you do not have an insurance policy with us."
	ChitChatReply          = "I'm happy to chat! I can help with pension or insurance questions anytime."
	ReferenceFallbackReply = "Pension reference data is unavailable right now. Please try again shortly."
	NoProductsReply        = "No active products found for your account."
)

// Greeting returns the welcome line for c. ok is false when the customer
// holds no products.
func Greeting(c *customer.Customer) (msg string, ok bool) {
	name := c.Identity.FullName()
	switch {
	case c.HasPension() && c.HasInsurance():
		return fmt.Sprintf("Hi %s, how can I help you with your insurance and pension queries?", name), true
	case c.HasPension():
		return fmt.Sprintf("Hi %s, how can I help you with your pension queries?", name), true
	case c.HasInsurance():
		return fmt.Sprintf("Hi %s, how can I help you with your insurance queries?", name), true
	default:
		return NoProductsReply, false
	}
}

// Classifier routes a query to a domain.
type Classifier interface {
	Classify(ctx context.Context, query string) intent.Domain
}

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// InteractionStore persists answered turns.
type InteractionStore interface {
	SaveInteraction(i storage.Interaction) error
}

// EngineCompleter generates with the local inference engine.
type EngineCompleter struct {
	Engine interface {
		Chat(ctx context.Context, model string, messages []engine.Message) (string, error)
	}
	Model string
}

// Complete sends prompt as a single user message.
func (c EngineCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Engine.Chat(ctx, c.Model, []engine.Message{{Role: "user", Content: prompt}})
}

// Reply is the outcome of one chat turn.
type Reply struct {
	InteractionID string
	Domain        intent.Domain
	Text          string
	ChunkIDs      []string
	Fallback      bool
}

// Assistant answers chat turns for authenticated sessions.
type Assistant struct {
	classifier Classifier
	completer  Completer
	composer   *composer.Composer
	store      InteractionStore
	publisher  events.Publisher
	topK       int
	logger     *slog.Logger
}

// NewAssistant creates an Assistant wired to all pipeline components.
// store and publisher may be nil. topK controls how many reference chunks
// are retrieved (default 5 if <= 0).
func NewAssistant(
	classifier Classifier,
	completer Completer,
	comp *composer.Composer,
	store InteractionStore,
	publisher events.Publisher,
	topK int,
) *Assistant {
	if topK <= 0 {
		topK = defaultTopK
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Assistant{
		classifier: classifier,
		completer:  completer,
		composer:   comp,
		store:      store,
		publisher:  publisher,
		topK:       topK,
		logger:     slog.Default(),
	}
}

// Answer runs one chat turn. Only a generation failure is returned as an
// error; unavailable reference data produces a fallback reply instead.
func (a *Assistant) Answer(ctx context.Context, s *session.Session, query string) (Reply, error) {
	start := time.Now()
	c := s.Customer
	reply := Reply{Domain: a.classifier.Classify(ctx, query)}

	switch reply.Domain {
	case intent.Pensions:
		if !c.HasPension() {
			reply.Text = NoPensionReply
			break
		}
		entries, err := s.Cache.Get(ctx, query, a.topK)
		if err != nil {
			a.logger.Warn("pension reference retrieval failed", "session_id", s.ID, "error", err)
			reply.Text = ReferenceFallbackReply
			reply.Fallback = true
			break
		}
		for _, e := range entries {
			reply.ChunkIDs = append(reply.ChunkIDs, e.ChunkID)
		}
		text, err := a.completer.Complete(ctx, a.composer.PensionPrompt(c.Pension, entries, query))
		if err != nil {
			return Reply{}, fmt.Errorf("generating pension answer: %w", err)
		}
		reply.Text = text

	case intent.Insurance:
		if !c.HasInsurance() {
			reply.Text = NoInsuranceReply
			break
		}
		text, err := a.completer.Complete(ctx, a.composer.InsurancePrompt(c.Insurance, query))
		if err != nil {
			return Reply{}, fmt.Errorf("generating insurance answer: %w", err)
		}
		reply.Text = text

	default:
		reply.Domain = intent.None
		reply.Text = ChitChatReply
	}

	reply.InteractionID = uuid.New().String()
	a.record(ctx, s, query, reply)

	a.logger.Debug("chat turn answered",
		"session_id", s.ID,
		"domain", reply.Domain,
		"chunks", len(reply.ChunkIDs),
		"fallback", reply.Fallback,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}

// record persists and publishes the turn. Failures are logged only.
func (a *Assistant) record(ctx context.Context, s *session.Session, query string, r Reply) {
	now := time.Now().UTC()
	chunkIDs := r.ChunkIDs
	if chunkIDs == nil {
		chunkIDs = []string{}
	}

	if a.store != nil {
		ids, _ := json.Marshal(chunkIDs)
		err := a.store.SaveInteraction(storage.Interaction{
			ID:         r.InteractionID,
			CreatedAt:  now,
			SessionID:  s.ID,
			CustomerID: s.Customer.ID(),
			Domain:     string(r.Domain),
			UserQuery:  query,
			Response:   r.Text,
			ChunkIDs:   string(ids),
			Fallback:   r.Fallback,
		})
		if err != nil {
			a.logger.Warn("saving interaction failed", "interaction_id", r.InteractionID, "error", err)
		}
	}

	err := a.publisher.Publish(ctx, events.InteractionEvent{
		InteractionID: r.InteractionID,
		SessionID:     s.ID,
		CustomerID:    s.Customer.ID(),
		Domain:        string(r.Domain),
		ChunkIDs:      chunkIDs,
		Fallback:      r.Fallback,
		CreatedAt:     now,
	})
	if err != nil {
		a.logger.Warn("publishing interaction event failed", "interaction_id", r.InteractionID, "error", err)
	}
}
