package pdfdoc

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Text backends.
const (
	BackendNative = "native"
	BackendMuPDF  = "mupdf"
)

// TextExtractor returns the text of each page of an unlocked document, in
// page order.
type TextExtractor interface {
	PageTexts(ctx context.Context, d *Document) ([]string, error)
}

// NewTextExtractor returns the extractor for a backend name.
func NewTextExtractor(backend string) (TextExtractor, error) {
	switch backend {
	case BackendNative, "":
		return NativeText{}, nil
	case BackendMuPDF:
		return MuPDFText{}, nil
	}
	return nil, fmt.Errorf("pdfdoc: unknown text backend %q", backend)
}

// NativeText reads text rows with the pure-Go PDF reader.
type NativeText struct{}

func (NativeText) PageTexts(ctx context.Context, d *Document) ([]string, error) {
	if d.reader == nil {
		return nil, ErrAuthFailed
	}
	n := d.reader.NumPage()
	pages := make([]string, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := d.reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("pdfdoc: page %d: %w", i, err)
		}
		var b strings.Builder
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
		pages[i-1] = b.String()
	}
	return pages, nil
}

// MuPDFText extracts text with MuPDF through go-fitz.
type MuPDFText struct{}

func (MuPDFText) PageTexts(ctx context.Context, d *Document) ([]string, error) {
	data, err := d.Decrypted()
	if err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: mupdf open: %w", err)
	}
	defer doc.Close()

	pages := make([]string, doc.NumPage())
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("pdfdoc: mupdf page %d: %w", i+1, err)
		}
		pages[i] = text
	}
	return pages, nil
}
