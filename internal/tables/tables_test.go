package tables

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() Frame {
	f := NewFrame([]Column{
		{Name: "statement_id", Kind: String},
		{Name: "statement_date", Kind: String},
		{Name: "total_amount_due", Kind: Float},
		{Name: "year", Kind: Int},
	})
	f.Rows = []Row{
		{"a", "2023-12-15", 1500.5, int64(2023)},
		{"b", "2024-01-15", nil, int64(2024)},
		{"c", nil, -20.0, nil},
	}
	return f
}

func TestParquetPreservesColumnsAndNulls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, sampleFrame()))

	got, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	assert.Equal(t, []string{"statement_id", "statement_date", "total_amount_due", "year"}, got.Names())
	assert.Equal(t, Float, got.Columns[2].Kind)
	assert.Equal(t, Int, got.Columns[3].Kind)
	require.Equal(t, 3, got.Len())

	assert.Equal(t, Row{"a", "2023-12-15", 1500.5, int64(2023)}, got.Rows[0])
	assert.Nil(t, got.Rows[1][2])
	assert.Nil(t, got.Rows[2][1])
	assert.Nil(t, got.Rows[2][3])
}

func TestWriteParquetRejectsWrongType(t *testing.T) {
	f := NewFrame([]Column{{Name: "amount", Kind: Float}})
	f.Rows = []Row{{"not a number"}}

	err := WriteParquet(&bytes.Buffer{}, f)
	assert.Error(t, err)
}

func TestFrameAppendChecksWidth(t *testing.T) {
	f := NewFrame([]Column{{Name: "a"}, {Name: "b"}})
	assert.NoError(t, f.Append(Row{1, 2}))
	assert.Error(t, f.Append(Row{1}))
	assert.Equal(t, Row{"x", nil}, f.Record(map[string]any{"a": "x"}))
}

func TestPartitionByYear(t *testing.T) {
	f := sampleFrame()

	byDate := PartitionByYear(f, YearFromDate(f, "statement_date"))
	assert.Len(t, byDate, 2)
	assert.Equal(t, 1, byDate[2023].Len())
	assert.Equal(t, 1, byDate[2024].Len())

	byCol := PartitionByYear(f, YearColumn(f, "year"))
	assert.Len(t, byCol, 2)
}

type fakeUploader struct {
	files map[string][]byte
	fail  bool
	seen  []string
}

func (u *fakeUploader) PutFile(_ context.Context, key, localPath, _ string) error {
	if u.fail {
		return errors.New("upload refused")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	u.files[key] = data
	u.seen = append(u.seen, localPath)
	return nil
}

func (u *fakeUploader) URI(key string) string { return "gs://bucket/" + key }

func TestYearWriter(t *testing.T) {
	up := &fakeUploader{files: map[string][]byte{}}
	f := sampleFrame()

	uris, err := YearWriter{TempDir: t.TempDir()}.Write(context.Background(), up, "/bank/parquet/", "statements", f, YearColumn(f, "year"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"gs://bucket/bank/parquet/2023-statements.parquet",
		"gs://bucket/bank/parquet/2024-statements.parquet",
	}, uris)

	data := up.files["bank/parquet/2024-statements.parquet"]
	got, err := ReadParquet(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "b", got.Rows[0][0])

	for _, p := range up.seen {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "temp file %s should be removed", p)
	}
}

func TestYearWriterRemovesTempOnFailure(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{files: map[string][]byte{}, fail: true}
	f := sampleFrame()

	_, err := YearWriter{TempDir: dir}.Write(context.Background(), up, "p", "statements", f, YearColumn(f, "year"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
