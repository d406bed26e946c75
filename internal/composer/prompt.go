package composer

import (
	"fmt"
	"strings"

	"github.com/meheroob/stremlit-agentic-ai/internal/cache"
	"github.com/meheroob/stremlit-agentic-ai/internal/customer"
)

const defaultMaxContextTokens = 4000

// Disclaimers closing every generated answer.
const (
	InsuranceDisclaimer = "DISCLAIMER: I am an AI model; please consult a financial advisor."
	PensionDisclaimer   = "DISCLAIMER: I am an AI model; this response is informed by FCA Handbook PS25/22; for personal advice, please consult a financial advisor."
)

const insuranceTemplate = `Customer Context:
%s

User Question:
%s

Provide a clear, compliant response.
Always end with this disclaimer:
'%s'`

const pensionTemplate = `You are an AI assistant for a pensions customer.
Use the following context to answer the user's question with top 3 details from fca reference data.

Customer Context:
%s

Internal FCA Reference Data (for your use only):
%s

User Question:
%s

Guidelines for your response:
- Provide accurate, compliant information about pensions.
- Include general knowledge like tax-free allowances, contribution limits, and standard rules where relevant.
- Do NOT give personalized advice or recommend specific actions.
- Keep it informative and educational.
- End with this disclaimer:
'%s'`

// Composer assembles generation prompts from the customer's product record,
// retrieved reference chunks and the user's question.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for reference data.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// InsurancePrompt builds the prompt for an insurance question. No reference
// data is injected.
func (c *Composer) InsurancePrompt(rec *customer.InsuranceRecord, query string) string {
	return fmt.Sprintf(insuranceTemplate, rec.Format(), query, InsuranceDisclaimer)
}

// PensionPrompt builds the retrieval-augmented prompt for a pension question.
// entries are expected in rank order.
func (c *Composer) PensionPrompt(rec *customer.PensionRecord, entries []cache.Entry, query string) string {
	return fmt.Sprintf(pensionTemplate, rec.Format(), c.referenceData(entries), query, PensionDisclaimer)
}

// referenceData joins chunk texts with newlines, skipping any chunk that
// would push the total over MaxContextTokens.
func (c *Composer) referenceData(entries []cache.Entry) string {
	remaining := c.MaxContextTokens
	selected := make([]string, 0, len(entries))
	for _, e := range entries {
		tokens := EstimateTokens(e.ChunkText) + 1 // separator
		if tokens > remaining {
			continue
		}
		selected = append(selected, e.ChunkText)
		remaining -= tokens
	}
	return strings.Join(selected, "\n")
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
