// Package intent routes a customer question to a product domain.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
)

const classifyTimeout = 5 * time.Second

// Domain is the product area a question belongs to.
type Domain string

const (
	Pensions  Domain = "Pensions"
	Insurance Domain = "Insurance"
	None      Domain = "None"
)

// ParseDomain matches a model label case-insensitively, ignoring surrounding
// whitespace, quotes and a trailing period. Anything else is None.
func ParseDomain(label string) Domain {
	label = strings.TrimSpace(label)
	label = strings.Trim(label, `"'`)
	label = strings.TrimSuffix(label, ".")
	switch {
	case strings.EqualFold(label, string(Pensions)):
		return Pensions
	case strings.EqualFold(label, string(Insurance)):
		return Insurance
	default:
		return None
	}
}

// Chatter is the interface for chat completion.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message) (string, error)
}

// Classifier asks a chat model for the domain of a query.
type Classifier struct {
	client  Chatter
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClassifier creates a Classifier using the given client and model name.
func NewClassifier(client Chatter, model string) *Classifier {
	return &Classifier{
		client:  client,
		model:   model,
		timeout: classifyTimeout,
		logger:  slog.Default(),
	}
}

// Classify returns the domain of query. On any failure (timeout, backend
// error, unexpected label) it returns None so the chat turn still completes.
func (c *Classifier) Classify(ctx context.Context, query string) Domain {
	if strings.TrimSpace(query) == "" {
		return None
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Chat(ctx, c.model, BuildPrompt(query))
	if err != nil {
		c.logger.Warn("domain classification failed", "error", err)
		return None
	}

	d := ParseDomain(raw)
	if d == None && !strings.EqualFold(strings.TrimSpace(raw), string(None)) {
		c.logger.Debug("unrecognised classification label", "response", raw)
	}
	return d
}
