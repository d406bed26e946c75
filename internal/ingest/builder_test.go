package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/source"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

type mockReader struct {
	readFn func(ctx context.Context, prefix string) ([]source.Document, error)
}

func (m *mockReader) ReadAll(ctx context.Context, prefix string) ([]source.Document, error) {
	return m.readFn(ctx, prefix)
}

type mockBatchEmbedder struct {
	calls   int
	embedFn func(ctx context.Context, texts []string) ([][]float64, error)
}

func (m *mockBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(ctx, texts)
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = []float64{float64(len(text)), float64(i)}
	}
	return out, nil
}

func docs(pages ...string) []source.Document {
	return []source.Document{{Name: "doc.pdf", Pages: pages}}
}

func staticReader(d []source.Document) *mockReader {
	return &mockReader{readFn: func(context.Context, string) ([]source.Document, error) { return d, nil }}
}

func TestBuild_ReplacesCorpus(t *testing.T) {
	store := openTestStore(t)
	corpus := retrieval.NewMemoryStore()
	emb := &mockBatchEmbedder{}

	b := NewBuilder(staticReader(docs("a b c d", "e f")), emb, corpus, store, Options{ChunkSize: 3, Overlap: 1})
	stats, err := b.Build(context.Background(), "fca/")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// words a..f, window 3 step 2: [a b c] [c d e] [e f]
	if stats.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", stats.Chunks)
	}
	if stats.Dimensions != 2 {
		t.Errorf("Dimensions = %d, want 2", stats.Dimensions)
	}
	if stats.Documents != 1 {
		t.Errorf("Documents = %d, want 1", stats.Documents)
	}

	rows, err := corpus.ExportAll(context.Background())
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	want := []string{"a b c", "c d e", "e f"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if r.ChunkText != want[i] {
			t.Errorf("row %d text = %q, want %q", i, r.ChunkText, want[i])
		}
		if r.ChunkID != []string{"0", "1", "2"}[i] {
			t.Errorf("row %d id = %q", i, r.ChunkID)
		}
	}

	last, err := store.LatestBuild()
	if err != nil {
		t.Fatalf("LatestBuild: %v", err)
	}
	if last.ID != stats.ID || last.Prefix != "fca/" || last.Chunks != 3 {
		t.Errorf("LatestBuild = %+v, want id %s prefix fca/ chunks 3", last, stats.ID)
	}
}

func TestBuild_DefaultPrefix(t *testing.T) {
	var got string
	reader := &mockReader{readFn: func(_ context.Context, prefix string) ([]source.Document, error) {
		got = prefix
		return docs("x"), nil
	}}
	b := NewBuilder(reader, &mockBatchEmbedder{}, retrieval.NewMemoryStore(), nil, Options{Prefix: "pdfs/"})
	if _, err := b.Build(context.Background(), ""); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got != "pdfs/" {
		t.Errorf("prefix = %q, want pdfs/", got)
	}
}

func TestBuild_NoContentKeepsCorpus(t *testing.T) {
	ctx := context.Background()
	corpus := retrieval.NewMemoryStore()
	old := []retrieval.CorpusRow{{ChunkID: "0", ChunkText: "old", Embedding: []float64{1}}}
	if err := corpus.Rebuild(ctx, old); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	emb := &mockBatchEmbedder{}

	b := NewBuilder(staticReader(nil), emb, corpus, nil, Options{})
	_, err := b.Build(ctx, "")
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
	if emb.calls != 0 {
		t.Errorf("EmbedBatch called %d times, want 0", emb.calls)
	}
	n, _ := corpus.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1 (unchanged)", n)
	}
}

func TestBuild_EmbedFailureKeepsCorpus(t *testing.T) {
	ctx := context.Background()
	corpus := retrieval.NewMemoryStore()
	old := []retrieval.CorpusRow{{ChunkID: "0", ChunkText: "old", Embedding: []float64{1}}}
	if err := corpus.Rebuild(ctx, old); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	emb := &mockBatchEmbedder{embedFn: func(context.Context, []string) ([][]float64, error) {
		return nil, errors.New("boom")
	}}

	b := NewBuilder(staticReader(docs("some text")), emb, corpus, nil, Options{})
	if _, err := b.Build(ctx, ""); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want embedding failure", err)
	}
	rows, _ := corpus.ExportAll(ctx)
	if len(rows) != 1 || rows[0].ChunkText != "old" {
		t.Errorf("corpus changed after failed build: %+v", rows)
	}
}

func TestBuild_ReadFailure(t *testing.T) {
	reader := &mockReader{readFn: func(context.Context, string) ([]source.Document, error) {
		return nil, errors.New("bucket gone")
	}}
	b := NewBuilder(reader, &mockBatchEmbedder{}, retrieval.NewMemoryStore(), nil, Options{})
	if _, err := b.Build(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuild_InvalidChunkOptions(t *testing.T) {
	b := NewBuilder(staticReader(docs("a b")), &mockBatchEmbedder{}, retrieval.NewMemoryStore(), nil,
		Options{ChunkSize: 2, Overlap: 2})
	if _, err := b.Build(context.Background(), ""); err == nil {
		t.Fatal("expected chunking error")
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordBuild(storage.CorpusBuild) error { return errors.New("disk full") }

func TestBuild_RecordFailureIsNotFatal(t *testing.T) {
	corpus := retrieval.NewMemoryStore()
	b := NewBuilder(staticReader(docs("a b c")), &mockBatchEmbedder{}, corpus, failingRecorder{}, Options{})
	if _, err := b.Build(context.Background(), ""); err != nil {
		t.Fatalf("Build: %v", err)
	}
	n, _ := corpus.Count(context.Background())
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
