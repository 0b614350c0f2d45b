package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/canonical"
	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/logger"
	"github.com/dvloznov/statement-pipeline/internal/metrics"
	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/tables"
	"github.com/dvloznov/statement-pipeline/internal/unify"
)

// Trigger operations.
const (
	OpRemovePassword = "remove_password"
	OpParseDocument  = "parse_document"
	OpStructureData  = "structure_data"
	OpProcessData    = "process_data"
)

// Output table names of the structure stage.
const (
	StatementsTable = "statements"
	ItemsTable      = "statement_items"
	DuesTable       = "statement_upcoming_dues"
)

// Deps wires a Runner.
type Deps struct {
	Stores       objectstore.Opener
	Bucket       string
	SilverBucket string
	Prefixes     config.PrefixConfig

	Unlocker  Unlocker
	Text      TextReader
	Extractor DocumentExtractor
	Writer    tables.YearWriter

	// Loader is optional.
	Loader Loader

	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Now     func() time.Time
}

// Runner executes the trigger operations.
type Runner struct {
	deps   Deps
	lister *objectstore.Lister
	log    zerolog.Logger
}

// NewRunner returns a Runner. A missing silver bucket falls back to Bucket.
func NewRunner(d Deps) *Runner {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.SilverBucket == "" {
		d.SilverBucket = d.Bucket
	}
	return &Runner{
		deps:   d,
		lister: objectstore.NewLister(d.Stores),
		log:    logger.Component(d.Log, "pipeline"),
	}
}

// Run dispatches op by name.
func (r *Runner) Run(ctx context.Context, op string, rng Range) (Report, error) {
	switch op {
	case OpRemovePassword:
		return r.RemovePasswords(ctx, rng)
	case OpParseDocument:
		return r.ParseDocuments(ctx, rng)
	case OpStructureData:
		return r.StructureData(ctx, rng)
	case OpProcessData:
		return r.ProcessData(ctx, rng)
	}
	return Report{Operation: op}, fmt.Errorf("unknown operation %q", op)
}

// RemovePasswords unlocks the raw PDFs dated within rng and uploads them
// under the unlocked prefix.
func (r *Runner) RemovePasswords(ctx context.Context, rng Range) (Report, error) {
	defer r.deps.Metrics.Observe(OpRemovePassword, time.Now())
	rep := Report{Operation: OpRemovePassword}

	store, uris, err := r.list(ctx, r.deps.Prefixes.PDF, rng, objectstore.ListOptions{Extension: ".pdf", Recursive: true})
	if err != nil {
		return rep, err
	}

	p := New(
		&FetchStep{Store: store},
		&UnlockStep{Unlocker: r.deps.Unlocker},
		&UploadUnlockedStep{Store: store, Prefix: r.deps.Prefixes.PDFUnlocked},
	)
	r.each(ctx, &rep, uris, p, nil)
	return rep, nil
}

// ParseDocuments extracts a statement document from each unlocked PDF dated
// within rng and writes it as JSON under the json prefix.
func (r *Runner) ParseDocuments(ctx context.Context, rng Range) (Report, error) {
	defer r.deps.Metrics.Observe(OpParseDocument, time.Now())
	rep := Report{Operation: OpParseDocument}

	store, uris, err := r.list(ctx, r.deps.Prefixes.PDFUnlocked, rng, objectstore.ListOptions{Extension: ".pdf", Recursive: true})
	if err != nil {
		return rep, err
	}

	p := New(
		&FetchStep{Store: store},
		&ReadTextStep{Reader: r.deps.Text},
		&ExtractStep{Extractor: r.deps.Extractor},
		&UploadJSONStep{Store: store, Prefix: r.deps.Prefixes.JSON()},
	)
	r.each(ctx, &rep, uris, p, func(s *State) {
		if len(s.Extraction.Repaired) > 0 {
			r.log.Warn().Str("uri", s.URI).Strs("repaired", s.Extraction.Repaired).Msg("document repaired with defaults")
		}
	})
	return rep, nil
}

// StructureData builds the canonical tables from the JSON documents dated
// within rng and writes one Parquet file per table and year.
func (r *Runner) StructureData(ctx context.Context, rng Range) (Report, error) {
	defer r.deps.Metrics.Observe(OpStructureData, time.Now())
	rep := Report{Operation: OpStructureData}

	store, uris, err := r.list(ctx, r.deps.Prefixes.JSON(), rng, objectstore.ListOptions{Extension: ".json", Recursive: true, LeadingStamp: true})
	if err != nil {
		return rep, err
	}

	acc := canonical.NewAccumulator()
	p := New(
		&FetchStep{Store: store},
		&BuildStep{Now: r.deps.Now},
	)
	r.each(ctx, &rep, uris, p, func(s *State) { acc.Add(s.Bundle) })

	prefix := r.deps.Prefixes.Parquet()
	outputs := []struct {
		table  string
		frame  tables.Frame
		yearOf tables.YearOf
	}{
		{StatementsTable, acc.Statements, tables.YearFromDate(acc.Statements, "statement_date")},
		{ItemsTable, acc.Items, tables.YearColumn(acc.Items, "year")},
		{DuesTable, acc.Dues, tables.YearColumn(acc.Dues, "year")},
	}
	for _, o := range outputs {
		written, err := r.deps.Writer.Write(ctx, store, prefix, o.table, o.frame, o.yearOf)
		for range written {
			r.deps.Metrics.Artifact(o.table)
		}
		rep.Files = append(rep.Files, written...)
		if err != nil {
			return rep, errors.Wrapf(err, "write %s", o.table)
		}
		r.log.Info().Str("table", o.table).Int("rows", o.frame.Len()).Int("files", len(written)).Msg("table written")
	}
	return rep, nil
}

// ProcessData unifies statements and items for the years within rng and,
// with a Loader, loads each unified file into the warehouse.
func (r *Runner) ProcessData(ctx context.Context, rng Range) (Report, error) {
	defer r.deps.Metrics.Observe(OpProcessData, time.Now())
	rep := Report{Operation: OpProcessData}

	if rng.Start.After(rng.End) {
		return rep, errors.WithStack(objectstore.ErrInvalidRange)
	}

	source, err := r.deps.Stores.Open(ctx, r.deps.Bucket)
	if err != nil {
		return rep, errors.Wrap(err, "open main bucket")
	}
	target, err := r.deps.Stores.Open(ctx, r.deps.SilverBucket)
	if err != nil {
		return rep, errors.Wrap(err, "open silver bucket")
	}

	svc := unify.NewService(source, target, r.deps.Writer, r.log)
	outputs, err := svc.Run(ctx, r.deps.Prefixes.Parquet(), rng.Start, rng.End)
	for _, o := range outputs {
		r.deps.Metrics.Artifact(unify.UnifiedTable)
		rep.Files = append(rep.Files, o.URI)
	}
	if err != nil {
		return rep, errors.Wrap(err, "unify")
	}

	if r.deps.Loader == nil {
		return rep, nil
	}
	for _, o := range outputs {
		table, err := r.deps.Loader.LoadUnified(ctx, o.URI, o.Year)
		rep.Items = append(rep.Items, ItemResult{Source: o.URI, Output: table, Err: err})
		r.deps.Metrics.Document(OpProcessData, err)
		if err != nil {
			r.log.Error().Err(err).Str("uri", o.URI).Msg("warehouse load failed")
		}
	}
	return rep, nil
}

// list resolves prefix in the main bucket and lists the objects dated
// within rng.
func (r *Runner) list(ctx context.Context, prefix string, rng Range, opts objectstore.ListOptions) (objectstore.Store, []string, error) {
	store, err := r.deps.Stores.Open(ctx, r.deps.Bucket)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open main bucket")
	}

	location := r.deps.Bucket
	if p := strings.Trim(prefix, "/"); p != "" {
		location += "/" + p
	}
	uris, err := r.lister.ListByDate(ctx, location, rng.Start, rng.End, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "list %s", location)
	}
	r.log.Info().Str("location", location).Str("range", rng.String()).Int("count", len(uris)).Msg("objects listed")
	return store, uris, nil
}

// each runs p for every uri. Failures are recorded and logged and the loop
// moves on; done is called after each success.
func (r *Runner) each(ctx context.Context, rep *Report, uris []string, p *Pipeline, done func(*State)) {
	for _, uri := range uris {
		if ctx.Err() != nil {
			rep.add(uri, "", ctx.Err())
			continue
		}
		state := &State{URI: uri}
		err := p.Execute(ctx, state)
		r.deps.Metrics.Document(rep.Operation, err)
		if err != nil {
			r.log.Error().Err(err).Str("uri", uri).Msg("document failed")
			rep.add(uri, "", err)
			continue
		}
		if done != nil {
			done(state)
		}
		if state.Output != "" {
			r.deps.Metrics.Artifact(rep.Operation)
		}
		rep.add(uri, state.Output, nil)
		r.log.Info().Str("uri", uri).Str("output", state.Output).Msg("document processed")
	}
}
