package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one answered chat turn.
type Interaction struct {
	ID         string
	CreatedAt  time.Time
	SessionID  string
	CustomerID string
	Domain     string
	UserQuery  string
	Response   string
	ChunkIDs   string // JSON array stored as text
	Fallback   bool
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// CorpusBuild records a completed corpus rebuild.
type CorpusBuild struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Prefix     string
	Documents  int
	Chunks     int
	Dimensions int
}
