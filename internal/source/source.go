// Package source enumerates reference documents in blob storage and extracts
// their text page by page.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// BlobRef names one object in a BlobStore.
type BlobRef struct {
	Name string
	Size int64
}

// BlobStore lists and downloads objects.
type BlobStore interface {
	List(ctx context.Context, prefix string) ([]BlobRef, error)
	Download(ctx context.Context, ref BlobRef) ([]byte, error)
}

// Page is the text of one page. Err is set when that page could not be read.
type Page struct {
	Number int
	Text   string
	Err    error
}

// Extractor turns a document's bytes into pages. An error means the whole
// document is unreadable; per-page problems are reported on the Page.
type Extractor interface {
	ExtractPages(data []byte) ([]Page, error)
}

// Document is an extracted document with its non-empty pages in order.
type Document struct {
	Name  string
	Pages []string
}

// Reader reads every supported document under a prefix.
type Reader struct {
	store      BlobStore
	extractors map[string]Extractor
	logger     *slog.Logger
}

// NewReader creates a Reader with the PDF and HTML extractors registered.
func NewReader(store BlobStore, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{store: store, extractors: make(map[string]Extractor), logger: logger}
	r.Register(".pdf", PDFExtractor{})
	html := HTMLExtractor{}
	r.Register(".html", html)
	r.Register(".htm", html)
	return r
}

// Register maps a file extension (with leading dot) to an extractor.
func (r *Reader) Register(ext string, x Extractor) {
	r.extractors[strings.ToLower(ext)] = x
}

// ReadAll downloads and extracts every supported blob under prefix in listing
// order. Documents that fail to download or parse are skipped, as are pages
// that fail to extract; both are logged. Only a listing failure is returned.
func (r *Reader) ReadAll(ctx context.Context, prefix string) ([]Document, error) {
	refs, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}

	var docs []Document
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, ok := r.extractors[strings.ToLower(path.Ext(ref.Name))]
		if !ok {
			continue
		}
		doc, ok := r.readOne(ctx, ref, x)
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (r *Reader) readOne(ctx context.Context, ref BlobRef, x Extractor) (Document, bool) {
	data, err := r.store.Download(ctx, ref)
	if err != nil {
		r.logger.Warn("skipping document: download failed", "document", ref.Name, "error", err)
		return Document{}, false
	}

	pages, err := x.ExtractPages(data)
	if err != nil {
		r.logger.Warn("skipping document: extraction failed", "document", ref.Name, "error", err)
		return Document{}, false
	}

	doc := Document{Name: ref.Name}
	for _, p := range pages {
		if p.Err != nil {
			r.logger.Warn("skipping page", "document", ref.Name, "page", p.Number, "error", p.Err)
			continue
		}
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		doc.Pages = append(doc.Pages, p.Text)
	}
	r.logger.Debug("document read", "document", ref.Name, "pages", len(doc.Pages))
	return doc, true
}

// JoinPages concatenates every page of every document with newlines, in order.
func JoinPages(docs []Document) string {
	var b strings.Builder
	first := true
	for _, d := range docs {
		for _, p := range d.Pages {
			if !first {
				b.WriteByte('\n')
			}
			b.WriteString(p)
			first = false
		}
	}
	return b.String()
}
