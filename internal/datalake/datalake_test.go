package datalake

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/tables"
)

func TestFormatDotPath(t *testing.T) {
	tests := map[string]string{
		"Bronze.Cards.Bank-A.Statements": "bronze.cards.bank_a.statements",
		"silver.my  zone.x--y.t":         "silver.my_zone.x_y.t",
		"gold.z/d.t!":                    "gold.zd.t",
		"":                               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatDotPath(in), in)
	}
}

func TestResolveLogical(t *testing.T) {
	a := NewAddresser("/lake", nil)

	dp, err := a.Resolve(ByLogicalID("bronze.cards.bank.statements"))
	require.NoError(t, err)
	assert.Equal(t, "bronze", dp.Layer)
	assert.Equal(t, "cards", dp.Zone)
	assert.Equal(t, "bank", dp.Domain)
	assert.Equal(t, "statements", dp.Table)
	assert.Equal(t, []string{"1-bronze", "cards", "bank", "statements"}, dp.Segments())
	assert.Equal(t, filepath.Join("/lake", "1-bronze", "cards", "bank", "statements"), dp.Path())

	dp, err = a.Resolve(ByLogicalID("silver.cards"))
	require.NoError(t, err)
	assert.Equal(t, "", dp.Table)
	assert.Equal(t, "silver.cards", dp.String())
	assert.Equal(t, filepath.Join("/lake", "2-silver", "cards"), dp.Path())
}

func TestResolvePhysical(t *testing.T) {
	a := NewAddresser("/lake", nil)

	dp, err := a.Resolve(ByPhysicalPath("/lake/1-bronze/cards/bank/statements/file.csv"))
	require.NoError(t, err)
	assert.Equal(t, "bronze.cards.bank.statements", dp.String())

	_, err = a.Resolve(ByPhysicalPath("/elsewhere/1-bronze/cards"))
	assert.ErrorIs(t, err, ErrOutsideRoot)

	u := NewAddresser("gs://bucket/lake", nil)
	dp, err = u.Resolve(ByPhysicalPath("gs://bucket/lake/3-gold/x/y/z"))
	require.NoError(t, err)
	assert.Equal(t, "gold.x.y.z", dp.String())
	assert.Equal(t, "gs://bucket/lake/3-gold/x/y/z", dp.Path())

	_, err = u.Resolve(ByPhysicalPath("gs://other/lake/3-gold"))
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestDotPathRoundTrip(t *testing.T) {
	for _, root := range []string{"/lake", "gs://bucket/lake"} {
		a := NewAddresser(root, nil)
		for _, id := range []string{
			"bronze.cards.bank.statements",
			"silver.cards.bank.statement_items",
			"platinum.a.b.c",
			"custom.a.b.c",
		} {
			first, err := a.Resolve(ByLogicalID(id))
			require.NoError(t, err)
			back, err := a.Resolve(ByPhysicalPath(first.Path()))
			require.NoError(t, err)
			assert.Equal(t, id, back.String(), "%s under %s", id, root)
			assert.True(t, first.Equal(back))
		}
	}
}

func TestResolveRejectsEmptyInteriorSegment(t *testing.T) {
	a := NewAddresser("gs://bucket/lake", nil)

	for _, id := range []string{"bronze..bank.statements", ".cards", "bronze.cards..statements"} {
		_, err := a.Resolve(ByLogicalID(id))
		assert.ErrorIs(t, err, ErrEmptySegment, id)
	}
	_, err := a.Resolve(ByPhysicalPath("gs://bucket/lake/1-bronze//bank/statements"))
	assert.ErrorIs(t, err, ErrEmptySegment)

	dp, err := a.Resolve(ByLogicalID("bronze.cards."))
	require.NoError(t, err)
	assert.Equal(t, "bronze.cards", dp.String())
}

func TestEqualComparesRoot(t *testing.T) {
	x, _ := NewAddresser("/a", nil).Resolve(ByLogicalID("bronze.z.d.t"))
	y, _ := NewAddresser("/b", nil).Resolve(ByLogicalID("bronze.z.d.t"))
	assert.False(t, x.Equal(y))
}

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{Format: "csv", Separator: ";", Encoding: "utf-8", CurrentFile: "20240101-t.csv"}
	data, err := m.marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEFAULT]")

	got, err := parseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func newConnector(t *testing.T, day time.Time) (*Connector, objectstore.Store) {
	t.Helper()
	p, err := objectstore.NewProvider(objectstore.Options{Backend: objectstore.BackendMem})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	store, err := p.Open(context.Background(), "lake-bucket")
	require.NoError(t, err)
	return NewConnector(store, "lake", nil, WithClock(func() time.Time { return day })), store
}

func sampleFrame() tables.Frame {
	f := tables.NewFrame([]tables.Column{{Name: "id"}, {Name: "amount", Kind: tables.Float}})
	f.Rows = append(f.Rows, tables.Row{"a", 1.5}, tables.Row{"b", nil})
	return f
}

func TestWriteAndReadTable(t *testing.T) {
	ctx := context.Background()
	c, store := newConnector(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))

	uri, err := c.WriteTable(ctx, ByLogicalID("bronze.cards.bank.statement_items"), sampleFrame())
	require.NoError(t, err)
	assert.Equal(t, "mem://lake-bucket/lake/1-bronze/cards/bank/statement_items/20240502-statement-items.csv", uri)

	raw, err := store.Get(ctx, "lake/1-bronze/cards/bank/statement_items/20240502-statement-items.csv")
	require.NoError(t, err)
	assert.Equal(t, "id;amount\na;1.5\nb;\n", string(raw))

	got, err := c.ReadTable(ctx, ByLogicalID("bronze.cards.bank.statement_items"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount"}, got.Names())
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "1.5", got.Value(0, "amount"))
	assert.Nil(t, got.Value(1, "amount"))
}

func TestReadTablePicksLatestWhenPartitioned(t *testing.T) {
	ctx := context.Background()
	c, store := newConnector(t, time.Now())
	dir := "lake/1-bronze/cards/bank/statements/"

	sidecar, err := Metadata{Format: "csv", Separator: ",", Encoding: "utf-8", Partitioned: true}.marshal()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, dir+".metadata/metadata.ini", sidecar, "text/plain"))
	require.NoError(t, store.Put(ctx, dir+"20240101-statements.csv", []byte("v\nold\n"), "text/csv"))
	require.NoError(t, store.Put(ctx, dir+"20240301-statements.csv", []byte("v\nnew\n"), "text/csv"))

	got, err := c.ReadTable(ctx, ByLogicalID("bronze.cards.bank.statements"))
	require.NoError(t, err)
	assert.Equal(t, "new", got.Value(0, "v"))
}

func TestReadTableErrors(t *testing.T) {
	ctx := context.Background()
	c, store := newConnector(t, time.Now())

	_, err := c.ReadTable(ctx, ByLogicalID("bronze.cards.bank"))
	assert.ErrorIs(t, err, ErrMissingTable)

	_, err = c.ReadTable(ctx, ByLogicalID("bronze.cards.bank.nothing"))
	assert.ErrorIs(t, err, ErrNotFound)

	dir := "lake/1-bronze/cards/bank/sheet/"
	sidecar, err := Metadata{Format: "xlsx", Separator: ";", Encoding: "utf-8", CurrentFile: "x.xlsx"}.marshal()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, dir+".metadata/metadata.ini", sidecar, "text/plain"))
	_, err = c.ReadTable(ctx, ByLogicalID("bronze.cards.bank.sheet"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	dir = "lake/1-bronze/cards/bank/empty/"
	sidecar, err = Metadata{Format: "csv", Separator: ";", Encoding: "utf-8", Partitioned: true}.marshal()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, dir+".metadata/metadata.ini", sidecar, "text/plain"))
	_, err = c.ReadTable(ctx, ByLogicalID("bronze.cards.bank.empty"))
	assert.ErrorIs(t, err, ErrNotFound)

	dir = "lake/1-bronze/cards/bank/empty_sheet/"
	sidecar, err = Metadata{Format: "xlsx", Separator: ";", Encoding: "utf-8", Partitioned: true}.marshal()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, dir+".metadata/metadata.ini", sidecar, "text/plain"))
	_, err = c.ReadTable(ctx, ByLogicalID("bronze.cards.bank.empty_sheet"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestListTablesAndFiles(t *testing.T) {
	ctx := context.Background()
	c, store := newConnector(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	for _, id := range []string{"bronze.cards.bank.statements", "bronze.cards.bank.statement_items", "silver.cards.bank.unified"} {
		_, err := c.WriteTable(ctx, ByLogicalID(id), sampleFrame())
		require.NoError(t, err)
	}
	require.NoError(t, store.Put(ctx, "lake/1-bronze/cards/readme.txt", []byte("x"), "text/plain"))

	got, err := c.ListTables(ctx, ByLogicalID("bronze"))
	require.NoError(t, err)
	var ids []string
	for _, dp := range got {
		ids = append(ids, dp.String())
	}
	assert.Equal(t, []string{"bronze.cards.bank.statement_items", "bronze.cards.bank.statements"}, ids)

	files, err := c.ListFiles(ctx, ByLogicalID("bronze.cards"))
	require.NoError(t, err)
	assert.Len(t, files["bronze.cards.bank.statements"], 2, "data file and sidecar")
	assert.Equal(t, []string{"mem://lake-bucket/lake/1-bronze/cards/readme.txt"}, files["cards"])

	_, err = c.ListTables(ctx, ByLogicalID("gold"))
	assert.ErrorIs(t, err, ErrNotFound)

	frames, err := c.ReadMany(ctx, "bronze.cards.bank.statements", "silver.cards.bank.unified")
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	assert.Equal(t, 2, frames["unified"].Len())
}
