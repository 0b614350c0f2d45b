package unify

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

// Table names of the yearly inputs and output.
const (
	StatementsTable = "statements"
	ItemsTable      = "statement_items"
	UnifiedTable    = "unified-base"
)

// Output is one written unified file.
type Output struct {
	Year int
	URI  string
	Rows int
}

// Service reads the yearly tables from the main store and writes the
// unified tables to the output store.
type Service struct {
	source objectstore.Store
	target objectstore.Store
	writer tables.YearWriter
	log    zerolog.Logger
}

// NewService returns a Service. A nil target writes back to source.
func NewService(source, target objectstore.Store, writer tables.YearWriter, log zerolog.Logger) *Service {
	if target == nil {
		target = source
	}
	return &Service{source: source, target: target, writer: writer, log: log}
}

// Run unifies every year between start and end that has both a statements
// and a statement_items file under prefix.
func (s *Service) Run(ctx context.Context, prefix string, start, end civil.Date) ([]Output, error) {
	prefix = strings.Trim(prefix, "/")
	objects, err := s.source.List(ctx, prefix, true)
	if err != nil {
		return nil, fmt.Errorf("unify: list %s: %w", prefix, err)
	}

	stmtYears := make(map[int]bool)
	itemYears := make(map[int]bool)
	for _, o := range objects {
		y, ok := FileYear(o.Key)
		if !ok {
			continue
		}
		switch {
		case strings.HasSuffix(o.Key, StatementsTable+".parquet"):
			stmtYears[y] = true
		case strings.HasSuffix(o.Key, ItemsTable+".parquet"):
			itemYears[y] = true
		}
	}

	var years []int
	for y := range stmtYears {
		if itemYears[y] && y >= start.Year && y <= end.Year {
			years = append(years, y)
		}
	}
	sort.Ints(years)

	var out []Output
	for _, y := range years {
		o, err := s.unifyYear(ctx, prefix, y)
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Service) unifyYear(ctx context.Context, prefix string, year int) (Output, error) {
	statements, err := s.read(ctx, yearKey(prefix, year, StatementsTable))
	if err != nil {
		return Output{}, err
	}
	items, err := s.read(ctx, yearKey(prefix, year, ItemsTable))
	if err != nil {
		return Output{}, err
	}

	unified := Unify(statements, items)
	uris, err := s.writer.Write(ctx, s.target, prefix, UnifiedTable, unified, func(tables.Row) (int, bool) {
		return year, true
	})
	if err != nil {
		return Output{}, fmt.Errorf("unify: write %d: %w", year, err)
	}
	if len(uris) == 0 {
		return Output{}, fmt.Errorf("unify: nothing written for %d", year)
	}

	s.log.Info().
		Int("year", year).
		Int("statements", statements.Len()).
		Int("items", items.Len()).
		Int("rows", unified.Len()).
		Str("uri", uris[0]).
		Msg("unified table written")
	return Output{Year: year, URI: uris[0], Rows: unified.Len()}, nil
}

func (s *Service) read(ctx context.Context, key string) (tables.Frame, error) {
	data, err := s.source.Get(ctx, key)
	if err != nil {
		return tables.Frame{}, fmt.Errorf("unify: read %s: %w", key, err)
	}
	f, err := tables.ReadParquet(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return tables.Frame{}, fmt.Errorf("unify: decode %s: %w", key, err)
	}
	return f, nil
}

func yearKey(prefix string, year int, table string) string {
	return path.Join(prefix, fmt.Sprintf("%d-%s.parquet", year, table))
}

// FileYear returns the leading dash-separated token of the base name of key
// when it is all digits.
func FileYear(key string) (int, bool) {
	token, _, _ := strings.Cut(path.Base(key), "-")
	if token == "" {
		return 0, false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	y, err := strconv.Atoi(token)
	return y, err == nil
}
