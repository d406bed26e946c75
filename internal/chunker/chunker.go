// Package chunker splits extracted document text into overlapping word windows
// that are embedded individually.
package chunker

import (
	"errors"
	"strings"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("overlap must be non-negative and smaller than chunk size")
)

// ChunkText splits text on whitespace and emits windows of chunkSize words.
// Each window starts chunkSize-overlap words after the previous one, and the
// last window may be shorter. Text with no words yields an empty slice.
func ChunkText(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidOverlap
	}

	words := strings.Fields(text)
	step := chunkSize - overlap
	chunks := make([]string, 0, len(words)/step+1)

	for start := 0; start < len(words); start += step {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks, nil
}
