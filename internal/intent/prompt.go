package intent

import (
	"fmt"

	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
)

const classifyPromptTemplate = `Classify the following query into ONE category:
- Pensions
- Insurance
- None

Query: %q

Respond with exactly one word: Pensions, Insurance, or None.`

// BuildPrompt constructs the chat messages for domain classification.
func BuildPrompt(query string) []engine.Message {
	return []engine.Message{
		{Role: "user", Content: fmt.Sprintf(classifyPromptTemplate, query)},
	}
}
