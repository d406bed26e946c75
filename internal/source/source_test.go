package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
)

type mockStore struct {
	refs       []BlobRef
	listErr    error
	data       map[string][]byte
	downloadFn func(ref BlobRef) ([]byte, error)
}

func (m *mockStore) List(_ context.Context, prefix string) ([]BlobRef, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.refs, nil
}

func (m *mockStore) Download(_ context.Context, ref BlobRef) ([]byte, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ref)
	}
	d, ok := m.data[ref.Name]
	if !ok {
		return nil, errors.New("no such object")
	}
	return d, nil
}

// textExtractor treats each line as a page; lines starting with "!" fail.
type textExtractor struct{}

func (textExtractor) ExtractPages(data []byte) ([]Page, error) {
	if bytes.HasPrefix(data, []byte("CORRUPT")) {
		return nil, errors.New("corrupt document")
	}
	var pages []Page
	for i, line := range strings.Split(string(data), "\n") {
		p := Page{Number: i + 1, Text: line}
		if strings.HasPrefix(line, "!") {
			p = Page{Number: i + 1, Err: errors.New("bad page")}
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func newTestReader(store BlobStore, logs *bytes.Buffer) *Reader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if logs != nil {
		logger = slog.New(slog.NewTextHandler(logs, nil))
	}
	r := NewReader(store, logger)
	r.Register(".txt", textExtractor{})
	return r
}

func TestReadAll_SkipsBadPagesAndDocuments(t *testing.T) {
	store := &mockStore{
		refs: []BlobRef{{Name: "p/a.txt"}, {Name: "p/broken.txt"}, {Name: "p/missing.txt"}, {Name: "p/notes.md"}, {Name: "p/b.TXT"}},
		data: map[string][]byte{
			"p/a.txt":      []byte("page one\n!oops\n\npage three"),
			"p/broken.txt": []byte("CORRUPT"),
			"p/notes.md":   []byte("ignored"),
			"p/b.TXT":      []byte("only page"),
		},
	}
	var logs bytes.Buffer
	docs, err := newTestReader(store, &logs).ReadAll(context.Background(), "p/")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2: %+v", len(docs), docs)
	}
	if docs[0].Name != "p/a.txt" || docs[1].Name != "p/b.TXT" {
		t.Errorf("document order = %s, %s", docs[0].Name, docs[1].Name)
	}
	if got := strings.Join(docs[0].Pages, "|"); got != "page one|page three" {
		t.Errorf("pages = %q, want %q", got, "page one|page three")
	}

	for _, want := range []string{"skipping page", "p/broken.txt", "p/missing.txt"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("logs missing %q:\n%s", want, logs.String())
		}
	}
}

func TestReadAll_ListFailureIsFatal(t *testing.T) {
	store := &mockStore{listErr: errors.New("permission denied")}
	if _, err := newTestReader(store, nil).ReadAll(context.Background(), "p/"); err == nil {
		t.Fatal("expected error when listing fails")
	}
}

func TestReadAll_NoDocuments(t *testing.T) {
	docs, err := newTestReader(&mockStore{}, nil).ReadAll(context.Background(), "p/")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d documents, want 0", len(docs))
	}
}

func TestJoinPages(t *testing.T) {
	docs := []Document{
		{Name: "a", Pages: []string{"one", "two"}},
		{Name: "empty"},
		{Name: "b", Pages: []string{"three"}},
	}
	if got := JoinPages(docs); got != "one\ntwo\nthree" {
		t.Errorf("JoinPages = %q", got)
	}
	if got := JoinPages(nil); got != "" {
		t.Errorf("JoinPages(nil) = %q, want empty", got)
	}
}

func TestFilesystemStore(t *testing.T) {
	fsys := fstest.MapFS{
		"docs/pensions/b.pdf": {Data: []byte("B")},
		"docs/pensions/a.pdf": {Data: []byte("AA")},
		"docs/other/c.pdf":    {Data: []byte("C")},
	}
	s := NewFSStore(fsys)
	ctx := context.Background()

	refs, err := s.List(ctx, "docs/pensions/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 2 || refs[0].Name != "docs/pensions/a.pdf" || refs[1].Name != "docs/pensions/b.pdf" {
		t.Fatalf("List = %+v", refs)
	}
	if refs[0].Size != 2 {
		t.Errorf("Size = %d, want 2", refs[0].Size)
	}

	data, err := s.Download(ctx, refs[0])
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "AA" {
		t.Errorf("Download = %q, want %q", data, "AA")
	}

	if _, err := s.Download(ctx, BlobRef{Name: "../etc/passwd"}); err == nil {
		t.Error("expected error for path escaping the root")
	}
}

func TestHTMLExtractor(t *testing.T) {
	doc := `<html><head><title>T</title><style>p{}</style></head><body>
		<h1>Pension rules</h1><script>var x = 1;</script>
		<p>The annual allowance is <b>60,000</b>.</p><p>Second paragraph</p></body></html>`

	pages, err := HTMLExtractor{}.ExtractPages([]byte(doc))
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
	text := pages[0].Text
	for _, want := range []string{"Pension rules", "annual allowance is 60,000", "Second paragraph"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	for _, unwanted := range []string{"var x", "p{}", "T\n"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("text contains %q: %q", unwanted, text)
		}
	}
}

// buildPDF assembles a minimal PDF with one page per entry in texts.
func buildPDF(texts ...string) []byte {
	var objs []string
	n := len(texts)
	// 1: catalog, 2: pages, 3: font, then page/content pairs.
	kids := make([]string, n)
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, t := range texts {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", t)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestPDFExtractor_Pages(t *testing.T) {
	pages, err := PDFExtractor{}.ExtractPages(buildPDF("Pension rules apply", "State pension age"))
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].Err != nil || !strings.Contains(pages[0].Text, "Pension rules apply") {
		t.Errorf("page 1 = %+v", pages[0])
	}
	if pages[1].Number != 2 || !strings.Contains(pages[1].Text, "State pension age") {
		t.Errorf("page 2 = %+v", pages[1])
	}
}

func TestPDFExtractor_NotAPDF(t *testing.T) {
	if _, err := (PDFExtractor{}).ExtractPages([]byte("plain text, not a pdf")); err == nil {
		t.Fatal("expected error for non-PDF input")
	}
	if _, err := (PDFExtractor{}).ExtractPages(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
