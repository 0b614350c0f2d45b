package datalake

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

var (
	// ErrMissingTable is returned when a reference has no table segment.
	ErrMissingTable = errors.New("datalake: reference has no table")

	// ErrNotFound is returned for a missing sidecar, table file or scope.
	ErrNotFound = errors.New("datalake: not found")

	// ErrUnsupportedFormat is returned for file formats or encodings the
	// connector cannot read or write.
	ErrUnsupportedFormat = errors.New("datalake: unsupported format")
)

// Connector reads and writes lake tables stored in an object store under a
// key prefix.
type Connector struct {
	store  objectstore.Store
	prefix string
	addr   Addresser
	now    func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithClock overrides the clock used to stamp written files.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) { c.now = now }
}

// NewConnector returns a Connector rooted at prefix inside store.
func NewConnector(store objectstore.Store, prefix string, layers map[string]string, opts ...Option) *Connector {
	prefix = strings.Trim(prefix, "/")
	c := &Connector{
		store:  store,
		prefix: prefix,
		addr:   NewAddresser(store.URI(prefix), layers),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Addresser returns the addresser bound to the connector root.
func (c *Connector) Addresser() Addresser { return c.addr }

// Resolve resolves ref against the connector root.
func (c *Connector) Resolve(ref Ref) (DotPath, error) {
	return c.addr.Resolve(ref)
}

func (c *Connector) key(parts ...string) string {
	return path.Join(append([]string{c.prefix}, parts...)...)
}

func (c *Connector) dirKey(dp DotPath) string {
	return c.key(dp.Segments()...)
}

func (c *Connector) loadMetadata(ctx context.Context, dir string) (Metadata, bool, error) {
	data, err := c.store.Get(ctx, path.Join(dir, metadataDir, metadataFile))
	if errors.Is(err, objectstore.ErrObjectNotFound) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, err
	}
	m, err := parseMetadata(data)
	if err != nil {
		return Metadata{}, false, err
	}
	return m, true, nil
}

// ReadTable loads the current file of a table.
func (c *Connector) ReadTable(ctx context.Context, ref Ref) (tables.Frame, error) {
	dp, err := c.Resolve(ref)
	if err != nil {
		return tables.Frame{}, err
	}
	if dp.Table == "" {
		return tables.Frame{}, fmt.Errorf("%w: %s", ErrMissingTable, dp)
	}

	dir := c.dirKey(dp)
	meta, ok, err := c.loadMetadata(ctx, dir)
	if err != nil {
		return tables.Frame{}, fmt.Errorf("read table %s: %w", dp, err)
	}
	if !ok {
		return tables.Frame{}, fmt.Errorf("%w: metadata for %s", ErrNotFound, dp)
	}
	if err := checkFormat(meta); err != nil {
		return tables.Frame{}, err
	}

	file := meta.CurrentFile
	if file == "" {
		file, err = c.latestFile(ctx, dir, dp.Table, meta.Format)
		if err != nil {
			return tables.Frame{}, err
		}
	}

	data, err := c.store.Get(ctx, path.Join(dir, file))
	if errors.Is(err, objectstore.ErrObjectNotFound) {
		return tables.Frame{}, fmt.Errorf("%w: %s", ErrNotFound, c.store.URI(path.Join(dir, file)))
	}
	if err != nil {
		return tables.Frame{}, fmt.Errorf("read table %s: %w", dp, err)
	}
	return decodeDelimited(data, meta.Separator)
}

// latestFile returns the lexicographically greatest *-{table}.{format} file
// in dir. Files written with dashes in place of underscores also match.
func (c *Connector) latestFile(ctx context.Context, dir, table, format string) (string, error) {
	objs, err := c.store.List(ctx, dir+"/", false)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}
	suffixes := []string{
		"-" + table + "." + format,
		"-" + strings.ReplaceAll(table, "_", "-") + "." + format,
	}
	var best string
	for _, o := range objs {
		base := path.Base(o.Key)
		for _, s := range suffixes {
			if strings.HasSuffix(base, s) && base > best {
				best = base
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: no file for %s", ErrNotFound, table)
	}
	return best, nil
}

// WriteTable writes frame as a new dated file of the table and updates the
// sidecar. It returns the URI of the written file.
func (c *Connector) WriteTable(ctx context.Context, ref Ref, frame tables.Frame) (string, error) {
	dp, err := c.Resolve(ref)
	if err != nil {
		return "", err
	}
	if dp.Table == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingTable, dp)
	}

	dir := c.dirKey(dp)
	meta, ok, err := c.loadMetadata(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("write table %s: %w", dp, err)
	}
	if !ok {
		meta = DefaultMetadata()
	}
	if err := checkFormat(meta); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s-%s.%s", c.now().Format("20060102"), strings.ReplaceAll(dp.Table, "_", "-"), meta.Format)
	if !meta.Partitioned {
		meta.CurrentFile = name
	}

	data, err := encodeDelimited(frame, meta.Separator)
	if err != nil {
		return "", fmt.Errorf("write table %s: %w", dp, err)
	}
	key := path.Join(dir, name)
	if err := c.store.Put(ctx, key, data, objectstore.ContentTypeText); err != nil {
		return "", fmt.Errorf("write table %s: %w", dp, err)
	}

	sidecar, err := meta.marshal()
	if err != nil {
		return "", err
	}
	if err := c.store.Put(ctx, path.Join(dir, metadataDir, metadataFile), sidecar, objectstore.ContentTypeText); err != nil {
		return "", fmt.Errorf("write metadata for %s: %w", dp, err)
	}
	return c.store.URI(key), nil
}

// ListTables returns every table under scope, sorted by id.
func (c *Connector) ListTables(ctx context.Context, scope Ref) ([]DotPath, error) {
	files, err := c.files(ctx, scope)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]DotPath)
	for _, f := range files {
		if f.dp.Table != "" {
			seen[f.dp.String()] = f.dp
		}
	}
	out := make([]DotPath, 0, len(seen))
	for _, dp := range seen {
		out = append(out, dp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// ListFiles groups the URIs of every file under scope by table id. Files
// outside a table directory are keyed by their parent directory name.
func (c *Connector) ListFiles(ctx context.Context, scope Ref) (map[string][]string, error) {
	files, err := c.files(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, f := range files {
		id := f.dp.String()
		if f.dp.Table == "" {
			id = path.Base(path.Dir(f.key))
		}
		out[id] = append(out[id], c.store.URI(f.key))
	}
	return out, nil
}

// ReadMany reads each id and keys the result by its table name.
func (c *Connector) ReadMany(ctx context.Context, ids ...string) (map[string]tables.Frame, error) {
	out := make(map[string]tables.Frame, len(ids))
	for _, id := range ids {
		dp, err := c.Resolve(ByLogicalID(id))
		if err != nil {
			return nil, err
		}
		f, err := c.ReadTable(ctx, ByLogicalID(id))
		if err != nil {
			return nil, err
		}
		out[dp.Table] = f
	}
	return out, nil
}

type lakeFile struct {
	key string
	dp  DotPath
}

func (c *Connector) files(ctx context.Context, scope Ref) ([]lakeFile, error) {
	sp, err := c.Resolve(scope)
	if err != nil {
		return nil, err
	}
	dir := c.dirKey(sp)
	prefix := dir + "/"
	if dir == "" || dir == "." {
		prefix = ""
	}

	objs, err := c.store.List(ctx, prefix, true)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sp, err)
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: no such directory %s", ErrNotFound, sp.Path())
	}

	out := make([]lakeFile, 0, len(objs))
	for _, o := range objs {
		dp, err := c.Resolve(ByPhysicalPath(c.store.URI(path.Dir(o.Key))))
		if err != nil {
			return nil, err
		}
		out = append(out, lakeFile{key: o.Key, dp: dp})
	}
	return out, nil
}

func checkFormat(m Metadata) error {
	switch m.Format {
	case "csv", "tsv", "txt":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, m.Format)
	}
	switch strings.ToLower(m.Encoding) {
	case "utf-8", "utf8", "":
	default:
		return fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, m.Encoding)
	}
	return nil
}

func separatorRune(sep string) rune {
	if sep == "" {
		return ';'
	}
	r, _ := utf8.DecodeRuneInString(sep)
	return r
}

func decodeDelimited(data []byte, sep string) (tables.Frame, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = separatorRune(sep)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return tables.Frame{}, fmt.Errorf("datalake: parse delimited text: %w", err)
	}
	if len(records) == 0 {
		return tables.Frame{}, nil
	}

	cols := make([]tables.Column, len(records[0]))
	for i, name := range records[0] {
		cols[i] = tables.Column{Name: name, Kind: tables.String}
	}
	f := tables.NewFrame(cols)
	for _, rec := range records[1:] {
		row := make(tables.Row, len(cols))
		for i := range cols {
			if i < len(rec) && rec[i] != "" {
				row[i] = rec[i]
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

func encodeDelimited(f tables.Frame, sep string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = separatorRune(sep)

	if err := w.Write(f.Names()); err != nil {
		return nil, err
	}
	for _, row := range f.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				rec[i] = fmt.Sprint(v)
			}
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
