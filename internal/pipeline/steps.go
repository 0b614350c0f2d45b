package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/statement-pipeline/internal/canonical"
	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/unlock"
)

// FetchStep downloads the object at state.URI.
type FetchStep struct {
	Store objectstore.Store
}

func (s *FetchStep) Name() string { return "fetch" }

func (s *FetchStep) Execute(ctx context.Context, state *State) error {
	_, key, err := objectstore.SplitURI(state.URI)
	if err != nil {
		return err
	}
	data, err := s.Store.Get(ctx, key)
	if err != nil {
		return err
	}
	state.Key = key
	state.Data = data
	return nil
}

// UnlockStep removes the password from state.Data.
type UnlockStep struct {
	Unlocker Unlocker
}

func (s *UnlockStep) Name() string { return "unlock" }

func (s *UnlockStep) Execute(ctx context.Context, state *State) error {
	res, err := s.Unlocker.Unlock(ctx, state.Key, state.Data)
	if err != nil {
		return err
	}
	state.Unlocked = res
	return nil
}

// UploadUnlockedStep writes the unlocked PDF under {Prefix}/{year}/.
type UploadUnlockedStep struct {
	Store  objectstore.Store
	Prefix string
}

func (s *UploadUnlockedStep) Name() string { return "upload_unlocked" }

func (s *UploadUnlockedStep) Execute(ctx context.Context, state *State) error {
	key := unlock.DestinationKey(s.Prefix, state.Key)
	if err := s.Store.Put(ctx, key, state.Unlocked.Data, objectstore.ContentTypePDF); err != nil {
		return err
	}
	state.Output = s.Store.URI(key)
	return nil
}

// ReadTextStep extracts the text of the unlocked PDF in state.Data.
type ReadTextStep struct {
	Reader TextReader
}

func (s *ReadTextStep) Name() string { return "read_text" }

func (s *ReadTextStep) Execute(ctx context.Context, state *State) error {
	text, err := s.Reader.ReadText(ctx, state.Data)
	if err != nil {
		return err
	}
	state.Text = text
	return nil
}

// ExtractStep asks the model for the statement document.
type ExtractStep struct {
	Extractor DocumentExtractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	res, err := s.Extractor.Extract(ctx, state.Text)
	if err != nil {
		return err
	}
	state.Extraction = res
	return nil
}

// UploadJSONStep writes the extracted document under {Prefix}/{year}/.
type UploadJSONStep struct {
	Store  objectstore.Store
	Prefix string
}

func (s *UploadJSONStep) Name() string { return "upload_json" }

func (s *UploadJSONStep) Execute(ctx context.Context, state *State) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state.Extraction.Document); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	key := JSONKey(s.Prefix, state.Key)
	if err := s.Store.Put(ctx, key, bytes.TrimRight(buf.Bytes(), "\n"), objectstore.ContentTypeJSON); err != nil {
		return err
	}
	state.Output = s.Store.URI(key)
	return nil
}

// JSONKey returns {prefix}/{year}/{name}.json for the PDF stored at pdfKey.
// The year folder comes from the leading digits of the file name.
func JSONKey(prefix, pdfKey string) string {
	name := path.Base(pdfKey)
	base := name
	if ext := path.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	return path.Join(strings.Trim(prefix, "/"), objectstore.YearFolder(name), base+".json")
}

// BuildStep builds the canonical rows of the JSON document in state.Data.
type BuildStep struct {
	Now func() time.Time
}

func (s *BuildStep) Name() string { return "build" }

func (s *BuildStep) Execute(ctx context.Context, state *State) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	b, err := canonical.Build(state.Data, state.URI, now())
	if err != nil {
		return err
	}
	state.Bundle = b
	return nil
}
