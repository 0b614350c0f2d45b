// Package unlock removes the password from statement PDFs.
package unlock

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/pdfdoc"
)

// State is the outcome of unlocking one document.
type State string

const (
	StateAlreadyOpen State = "already_open"
	StateDecrypted   State = "decrypted"
	StateAuthFailed  State = "auth_failed"
)

// Lockable is an opened document that may need a password.
type Lockable interface {
	Encrypted() bool
	Authenticate(password string) bool
	Decrypted() ([]byte, error)
}

// OpenFunc parses raw document bytes.
type OpenFunc func(data []byte) (Lockable, error)

func openPDF(data []byte) (Lockable, error) {
	return pdfdoc.Open(data)
}

// Result is an unlocked document ready to upload.
type Result struct {
	State      State
	Name       string
	Data       []byte
	YearFolder string
	LocalPath  string
}

// Config configures an Unlocker.
type Config struct {
	Password      string
	KeepLocalCopy bool
	OutputDir     string
}

// Unlocker decrypts documents with a single configured password.
type Unlocker struct {
	cfg  Config
	open OpenFunc
	log  zerolog.Logger
}

// Option configures an Unlocker.
type Option func(*Unlocker)

// WithOpener replaces the PDF parser.
func WithOpener(open OpenFunc) Option {
	return func(u *Unlocker) { u.open = open }
}

// New returns an Unlocker.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Unlocker {
	u := &Unlocker{cfg: cfg, open: openPDF, log: log}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Unlock returns the readable bytes of the document stored at originalKey.
// Documents without encryption pass through untouched. Encrypted ones get
// exactly one attempt with the configured password.
func (u *Unlocker) Unlock(ctx context.Context, originalKey string, data []byte) (Result, error) {
	res := Result{
		Name:       UnlockedName(path.Base(originalKey)),
		YearFolder: objectstore.YearFolder(originalKey),
	}

	doc, err := u.open(data)
	if err != nil {
		return res, fmt.Errorf("unlock %s: %w", originalKey, err)
	}

	if !doc.Encrypted() {
		res.State = StateAlreadyOpen
		res.Data = data
		u.log.Debug().Str("key", originalKey).Msg("PDF opened without a password")
	} else {
		if u.cfg.Password == "" || !doc.Authenticate(u.cfg.Password) {
			res.State = StateAuthFailed
			return res, fmt.Errorf("unlock %s: %w", originalKey, pdfdoc.ErrAuthFailed)
		}
		out, err := doc.Decrypted()
		if err != nil {
			return res, fmt.Errorf("unlock %s: %w", originalKey, err)
		}
		res.State = StateDecrypted
		res.Data = out
	}

	if u.cfg.KeepLocalCopy {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		local := LocalCopyPath(u.cfg.OutputDir, originalKey)
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return res, fmt.Errorf("create local dir: %w", err)
		}
		if err := os.WriteFile(local, res.Data, 0o644); err != nil {
			return res, fmt.Errorf("write local copy %s: %w", local, err)
		}
		res.LocalPath = local
		u.log.Debug().Str("path", local).Msg("local copy written")
	}
	return res, nil
}

// UnlockedName appends "_unlocked" to the stem of name, defaulting the
// extension to .pdf.
func UnlockedName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".pdf"
	}
	return stem + "_unlocked" + ext
}

// DestinationKey places the unlocked copy of originalKey under prefix,
// inside a folder named after the year in the original key. A bucket URI
// prefix is reduced to its key part.
func DestinationKey(prefix, originalKey string) string {
	if _, key, err := objectstore.SplitURI(prefix); err == nil {
		prefix = key
	}
	prefix = strings.Trim(prefix, "/")
	return path.Join(prefix, objectstore.YearFolder(originalKey), UnlockedName(path.Base(originalKey)))
}

// LocalCopyPath mirrors the folder of originalKey under outputDir, dropping
// a leading landing/ folder and renaming pdf folders to pdf_unlocked.
func LocalCopyPath(outputDir, originalKey string) string {
	dir := path.Dir(originalKey)
	if dir == "." {
		dir = ""
	}
	dir = strings.TrimPrefix(dir, "landing/")
	dir = strings.ReplaceAll("/"+dir+"/", "/pdf/", "/pdf_unlocked/")
	dir = strings.Trim(dir, "/")

	parts := append([]string{outputDir}, strings.Split(dir, "/")...)
	parts = append(parts, UnlockedName(path.Base(originalKey)))
	return filepath.Join(parts...)
}
