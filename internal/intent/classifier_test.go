package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
)

type mockChatter struct {
	chatFn func(ctx context.Context, model string, messages []engine.Message) (string, error)
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []engine.Message) (string, error) {
	return m.chatFn(ctx, model, messages)
}

func replying(s string) *mockChatter {
	return &mockChatter{chatFn: func(context.Context, string, []engine.Message) (string, error) {
		return s, nil
	}}
}

func TestClassify_Labels(t *testing.T) {
	tests := []struct {
		raw  string
		want Domain
	}{
		{"Pensions", Pensions},
		{"Insurance", Insurance},
		{"None", None},
		{"  pensions.\n", Pensions},
		{"INSURANCE", Insurance},
		{`"Pensions"`, Pensions},
		{"Pension", None},
		{"Pensions and Insurance", None},
		{"", None},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c := NewClassifier(replying(tt.raw), "llama3.2")
			if got := c.Classify(context.Background(), "question"); got != tt.want {
				t.Errorf("Classify with %q = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassify_ErrorIsNone(t *testing.T) {
	c := NewClassifier(&mockChatter{chatFn: func(context.Context, string, []engine.Message) (string, error) {
		return "", errors.New("connection refused")
	}}, "llama3.2")
	if got := c.Classify(context.Background(), "question"); got != None {
		t.Errorf("Classify = %q, want None", got)
	}
}

func TestClassify_Timeout(t *testing.T) {
	c := NewClassifier(&mockChatter{chatFn: func(ctx context.Context, _ string, _ []engine.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}, "llama3.2")
	c.timeout = 20 * time.Millisecond

	start := time.Now()
	if got := c.Classify(context.Background(), "question"); got != None {
		t.Errorf("Classify = %q, want None", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Classify took %v, want timeout near 20ms", elapsed)
	}
}

func TestClassify_EmptyQuerySkipsModel(t *testing.T) {
	c := NewClassifier(&mockChatter{chatFn: func(context.Context, string, []engine.Message) (string, error) {
		t.Fatal("Chat called for empty query")
		return "", nil
	}}, "llama3.2")
	if got := c.Classify(context.Background(), "   "); got != None {
		t.Errorf("Classify = %q, want None", got)
	}
}

func TestClassify_UsesModel(t *testing.T) {
	var gotModel string
	c := NewClassifier(&mockChatter{chatFn: func(_ context.Context, model string, _ []engine.Message) (string, error) {
		gotModel = model
		return "None", nil
	}}, "gemma3")
	c.Classify(context.Background(), "hello")
	if gotModel != "gemma3" {
		t.Errorf("model = %q, want gemma3", gotModel)
	}
}
