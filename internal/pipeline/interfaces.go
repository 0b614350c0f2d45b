package pipeline

import (
	"context"

	"github.com/dvloznov/statement-pipeline/internal/extraction"
	"github.com/dvloznov/statement-pipeline/internal/pdfdoc"
	"github.com/dvloznov/statement-pipeline/internal/unlock"
)

// Unlocker returns the readable bytes of a stored PDF.
type Unlocker interface {
	Unlock(ctx context.Context, originalKey string, data []byte) (unlock.Result, error)
}

// TextReader turns unlocked PDF bytes into prompt text.
type TextReader interface {
	ReadText(ctx context.Context, data []byte) (string, error)
}

// DocumentExtractor turns statement text into a validated document.
type DocumentExtractor interface {
	Extract(ctx context.Context, text string) (extraction.Result, error)
}

// Loader copies a unified Parquet file into the warehouse.
type Loader interface {
	LoadUnified(ctx context.Context, uri string, year int) (string, error)
}

// PDFText reads PDFs with a pdfdoc text backend.
type PDFText struct {
	Extractor pdfdoc.TextExtractor
}

// ReadText opens data and joins its page texts.
func (p PDFText) ReadText(ctx context.Context, data []byte) (string, error) {
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return "", err
	}
	return doc.Text(ctx, p.Extractor)
}

var (
	_ Unlocker          = (*unlock.Unlocker)(nil)
	_ DocumentExtractor = (*extraction.Extractor)(nil)
	_ TextReader        = PDFText{}
)
