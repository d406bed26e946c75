package composer

import (
	"strings"
	"testing"

	"github.com/meheroob/stremlit-agentic-ai/internal/cache"
	"github.com/meheroob/stremlit-agentic-ai/internal/customer"
)

func testPension() *customer.PensionRecord {
	return &customer.PensionRecord{
		CustomerID:  "C001",
		PensionID:   "P-1",
		PensionType: "SIPP",
		FundValue:   "125000",
	}
}

func testInsurance() *customer.InsuranceRecord {
	return &customer.InsuranceRecord{
		CustomerID:  "C001",
		PolicyID:    "I-1",
		PolicyType:  "Life",
		CoverAmount: "250000",
	}
}

func TestNew_DefaultBudget(t *testing.T) {
	if c := New(0); c.MaxContextTokens != 4000 {
		t.Errorf("MaxContextTokens = %d, want 4000", c.MaxContextTokens)
	}
	if c := New(-5); c.MaxContextTokens != 4000 {
		t.Errorf("MaxContextTokens = %d, want 4000", c.MaxContextTokens)
	}
	if c := New(100); c.MaxContextTokens != 100 {
		t.Errorf("MaxContextTokens = %d, want 100", c.MaxContextTokens)
	}
}

func TestInsurancePrompt(t *testing.T) {
	p := New(0).InsurancePrompt(testInsurance(), "Am I covered abroad?")

	for _, want := range []string{
		"Customer Context:\nCustomerID: C001\nPolicyID: I-1\nPolicyType: Life\nCoverAmount: 250000",
		"User Question:\nAm I covered abroad?",
		"Provide a clear, compliant response.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n%s", want, p)
		}
	}
	if !strings.HasSuffix(p, "'"+InsuranceDisclaimer+"'") {
		t.Errorf("prompt does not end with disclaimer:\n%s", p)
	}
	if strings.Contains(p, "FCA Reference") {
		t.Error("insurance prompt contains reference data section")
	}
}

func TestPensionPrompt(t *testing.T) {
	entries := []cache.Entry{
		{ChunkID: "3", ChunkText: "The annual allowance is 60000."},
		{ChunkID: "1", ChunkText: "Tax-free lump sum is 25 percent."},
	}
	p := New(0).PensionPrompt(testPension(), entries, "How much can I contribute?")

	for _, want := range []string{
		"You are an AI assistant for a pensions customer.",
		"Customer Context:\nCustomerID: C001\nPensionID: P-1",
		"Internal FCA Reference Data (for your use only):\nThe annual allowance is 60000.\nTax-free lump sum is 25 percent.\n\nUser Question:",
		"User Question:\nHow much can I contribute?",
		"- Do NOT give personalized advice or recommend specific actions.",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q\n%s", want, p)
		}
	}
	if !strings.HasSuffix(p, "'"+PensionDisclaimer+"'") {
		t.Errorf("prompt does not end with disclaimer:\n%s", p)
	}
}

func TestPensionPrompt_NoEntries(t *testing.T) {
	p := New(0).PensionPrompt(testPension(), nil, "q")
	if !strings.Contains(p, "Internal FCA Reference Data (for your use only):\n\n\nUser Question:") {
		t.Errorf("unexpected empty reference section:\n%s", p)
	}
}

func TestReferenceData_BudgetKeepsRankOrder(t *testing.T) {
	c := New(10)
	entries := []cache.Entry{
		{ChunkID: "a", ChunkText: strings.Repeat("x", 16)}, // 4 tokens + 1
		{ChunkID: "b", ChunkText: strings.Repeat("y", 40)}, // 10 tokens + 1, dropped
		{ChunkID: "c", ChunkText: strings.Repeat("z", 12)}, // 3 tokens + 1
		{ChunkID: "d", ChunkText: "w"},                     // 1 token + 1, dropped
	}
	got := c.referenceData(entries)
	want := strings.Repeat("x", 16) + "\n" + strings.Repeat("z", 12)
	if got != want {
		t.Errorf("referenceData = %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("a", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}
