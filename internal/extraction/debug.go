package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/objectstore"
)

// DebugSink keeps the model output that could not be turned into a valid
// statement document.
type DebugSink interface {
	Save(ctx context.Context, msg string, output any) (string, error)
}

// DebugName returns the file name used for a dump taken at t.
func DebugName(t time.Time) string {
	return "debug_invalid_output_" + t.Format("20060102_150405") + ".json"
}

func debugPayload(msg string, output any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"error": msg, "raw_output": output}); err != nil {
		return nil, fmt.Errorf("encode debug output: %w", err)
	}
	return buf.Bytes(), nil
}

// DirSink writes dumps to a local directory.
type DirSink struct {
	Dir string
	Now func() time.Time
}

// Save implements DebugSink.
func (s DirSink) Save(_ context.Context, msg string, output any) (string, error) {
	data, err := debugPayload(msg, output)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	p := filepath.Join(s.Dir, DebugName(clock(s.Now)))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write debug output: %w", err)
	}
	return p, nil
}

// StoreSink writes dumps to an object store under Prefix.
type StoreSink struct {
	Store  objectstore.Store
	Prefix string
	Now    func() time.Time
}

// Save implements DebugSink.
func (s StoreSink) Save(ctx context.Context, msg string, output any) (string, error) {
	data, err := debugPayload(msg, output)
	if err != nil {
		return "", err
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = "debug"
	}
	key := path.Join(prefix, DebugName(clock(s.Now)))
	if err := s.Store.Put(ctx, key, data, objectstore.ContentTypeJSON); err != nil {
		return "", fmt.Errorf("upload debug output: %w", err)
	}
	return s.Store.URI(key), nil
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}
