// Package extraction turns statement text into a schema-validated JSON
// document with a language model.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/rs/zerolog"
)

var (
	// ErrNoJSONFound means the model answer holds no JSON object.
	ErrNoJSONFound = errors.New("no JSON object found in model output")
	// ErrExtractionInvalid means the model answer could not be decoded or
	// repaired into a valid document.
	ErrExtractionInvalid = errors.New("model output is not a valid statement document")
)

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Result is a validated statement document.
type Result struct {
	Document map[string]any
	// Repaired lists the dotted paths that were filled with defaults. It is
	// nil when the model output validated as is.
	Repaired []string
}

// Extractor runs the schema-guided extraction.
type Extractor struct {
	completer   Completer
	schema      *Schema
	debug       DebugSink
	temperature float64
	log         zerolog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithDebugSink sets where invalid outputs are dumped.
func WithDebugSink(s DebugSink) ExtractorOption {
	return func(e *Extractor) { e.debug = s }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ExtractorOption {
	return func(e *Extractor) { e.temperature = t }
}

// NewExtractor returns an Extractor.
func NewExtractor(c Completer, schema *Schema, log zerolog.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{completer: c, schema: schema, log: log}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract asks the model once for the statement document of text.
func (e *Extractor) Extract(ctx context.Context, text string) (Result, error) {
	prompt := BuildPrompt(text, e.schema.Text())
	answer, err := e.completer.Complete(ctx, Request{
		Prompt:      prompt,
		Temperature: e.temperature,
		JSONObject:  true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("Extract: complete: %w", err)
	}

	block := jsonBlock.FindString(answer)
	if block == "" {
		e.dump(ctx, ErrNoJSONFound.Error(), answer)
		return Result{}, ErrNoJSONFound
	}

	doc, err := decodeObject(block)
	if err != nil {
		e.dump(ctx, err.Error(), answer)
		return Result{}, fmt.Errorf("Extract: %w: %v", ErrExtractionInvalid, err)
	}

	NormalizeExtras(doc)
	verr := e.schema.Validate(doc)
	if verr == nil {
		return Result{Document: doc}, nil
	}
	e.log.Warn().Err(verr).Msg("model output failed validation, repairing")

	repaired := deepCopy(doc).(map[string]any)
	paths := FillDefaults(e.schema.Raw(), repaired)
	NormalizeExtras(repaired)
	if err := e.schema.Validate(repaired); err != nil {
		e.dump(ctx, err.Error(), repaired)
		return Result{}, fmt.Errorf("Extract: %w: %v", ErrExtractionInvalid, err)
	}

	e.log.Info().Strs("repaired", paths).Msg("model output repaired")
	return Result{Document: repaired, Repaired: paths}, nil
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return nil, errors.New("decode model output: trailing content after the JSON object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("model output is a %T, not an object", v)
	}
	return obj, nil
}

func (e *Extractor) dump(ctx context.Context, msg string, output any) {
	if e.debug == nil {
		return
	}
	where, err := e.debug.Save(ctx, msg, output)
	if err != nil {
		e.log.Error().Err(err).Msg("saving debug output")
		return
	}
	e.log.Warn().Str("path", where).Str("error", msg).Msg("invalid model output saved")
}
