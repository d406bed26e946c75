package source

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts plain text from each page of a PDF.
type PDFExtractor struct{}

func (PDFExtractor) ExtractPages(data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	n := r.NumPage()
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		text, err := pageText(r, i)
		pages = append(pages, Page{Number: i, Text: text, Err: err})
	}
	return pages, nil
}

// pageText reads one page. The pdf package panics on some malformed content
// streams, so a panic is turned into an error for that page only.
func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", i, rec)
		}
	}()

	p := r.Page(i)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
