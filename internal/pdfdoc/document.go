// Package pdfdoc opens statement PDFs, unlocks password-protected ones and
// extracts their text.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrAuthFailed is returned when an encrypted document cannot be opened
	// with the configured password.
	ErrAuthFailed = errors.New("incorrect password or the PDF could not be unlocked")

	// ErrEmptyDocument is returned when no page yields text.
	ErrEmptyDocument = errors.New("the PDF contains no readable text")
)

// Document is an opened PDF.
type Document struct {
	data      []byte
	reader    *pdf.Reader
	encrypted bool
	password  string
}

// Open parses data. Encrypted documents open successfully but stay locked
// until Authenticate succeeds.
func Open(data []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return &Document{data: data, encrypted: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: open: %w", err)
	}
	return &Document{data: data, reader: r}, nil
}

// Encrypted reports whether the document needs a password to be read.
func (d *Document) Encrypted() bool { return d.encrypted }

// Unlocked reports whether the document can be read.
func (d *Document) Unlocked() bool { return d.reader != nil }

// Authenticate makes a single attempt to unlock the document with password.
func (d *Document) Authenticate(password string) bool {
	if d.reader != nil {
		return true
	}
	if password == "" {
		return false
	}

	tried := false
	r, err := pdf.NewReaderEncrypted(bytes.NewReader(d.data), int64(len(d.data)), func() string {
		if tried {
			return ""
		}
		tried = true
		return password
	})
	if err != nil {
		return false
	}
	d.reader = r
	d.password = password
	return true
}

// Decrypted returns the document bytes without encryption. Documents that
// were never encrypted are returned unchanged.
func (d *Document) Decrypted() ([]byte, error) {
	if !d.encrypted {
		return d.data, nil
	}
	if d.reader == nil {
		return nil, ErrAuthFailed
	}

	conf := model.NewDefaultConfiguration()
	conf.UserPW = d.password
	conf.OwnerPW = d.password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(d.data), &out, conf); err != nil {
		return nil, fmt.Errorf("pdfdoc: decrypt: %w", err)
	}
	return out.Bytes(), nil
}

// NumPage returns the page count of an unlocked document.
func (d *Document) NumPage() int {
	if d.reader == nil {
		return 0
	}
	return d.reader.NumPage()
}

// Text extracts every page with ex and joins the non-empty ones under a
// page marker.
func (d *Document) Text(ctx context.Context, ex TextExtractor) (string, error) {
	if d.reader == nil {
		return "", ErrAuthFailed
	}
	pages, err := ex.PageTexts(ctx, d)
	if err != nil {
		return "", err
	}
	return JoinPages(pages)
}

// JoinPages renders page texts the way the extraction prompt expects them.
func JoinPages(pages []string) (string, error) {
	var b strings.Builder
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Página %d ---\n%s\n", i+1, p)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}
