// Package events publishes answered chat turns to downstream consumers.
package events

import (
	"context"
	"time"
)

// InteractionEvent describes one answered chat turn.
type InteractionEvent struct {
	InteractionID string    `json:"interaction_id"`
	SessionID     string    `json:"session_id"`
	CustomerID    string    `json:"customer_id"`
	Domain        string    `json:"domain"`
	ChunkIDs      []string  `json:"chunk_ids"`
	Fallback      bool      `json:"fallback"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publisher delivers interaction events.
type Publisher interface {
	Publish(ctx context.Context, ev InteractionEvent) error
	Close() error
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, InteractionEvent) error { return nil }
func (NopPublisher) Close() error                                    { return nil }
