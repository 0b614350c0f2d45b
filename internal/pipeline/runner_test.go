package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-pipeline/internal/config"
	"github.com/dvloznov/statement-pipeline/internal/extraction"
	"github.com/dvloznov/statement-pipeline/internal/metrics"
	"github.com/dvloznov/statement-pipeline/internal/objectstore"
	"github.com/dvloznov/statement-pipeline/internal/tables"
	"github.com/dvloznov/statement-pipeline/internal/unlock"
)

type fakeUnlocker struct{}

func (fakeUnlocker) Unlock(ctx context.Context, key string, data []byte) (unlock.Result, error) {
	if string(data) == "locked" {
		return unlock.Result{State: unlock.StateAuthFailed}, errors.New("wrong password")
	}
	return unlock.Result{State: unlock.StateDecrypted, Data: append([]byte("open:"), data...)}, nil
}

type fakeText struct{}

func (fakeText) ReadText(ctx context.Context, data []byte) (string, error) {
	return string(data), nil
}

type fakeExtractor struct {
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (extraction.Result, error) {
	f.calls++
	if text == "garbled" {
		return extraction.Result{}, extraction.ErrNoJSONFound
	}
	return extraction.Result{
		Document: map[string]any{"estado_de_cuenta": map[string]any{"comuna": "ÑUÑOA", "texto": text}},
	}, nil
}

type fakeLoader struct {
	loaded map[string]int
}

func (f *fakeLoader) LoadUnified(ctx context.Context, uri string, year int) (string, error) {
	if f.loaded == nil {
		f.loaded = map[string]int{}
	}
	f.loaded[uri] = year
	return "finance.unified_base_2024", nil
}

type fixture struct {
	provider *objectstore.Provider
	main     objectstore.Store
	silver   objectstore.Store
	runner   *Runner
	extract  *fakeExtractor
	loader   *fakeLoader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	provider, err := objectstore.NewProvider(objectstore.Options{Backend: objectstore.BackendMem})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })

	main, err := provider.Open(ctx, "raw")
	require.NoError(t, err)
	silver, err := provider.Open(ctx, "silver")
	require.NoError(t, err)

	f := &fixture{provider: provider, main: main, silver: silver, extract: &fakeExtractor{}, loader: &fakeLoader{}}
	f.runner = NewRunner(Deps{
		Stores:       provider,
		Bucket:       "raw",
		SilverBucket: "silver",
		Prefixes:     config.PrefixConfig{PDF: "landing/pdf", PDFUnlocked: "bank/pdf"},
		Unlocker:     fakeUnlocker{},
		Text:         fakeText{},
		Extractor:    f.extract,
		Writer:       tables.YearWriter{TempDir: t.TempDir()},
		Loader:       f.loader,
		Metrics:      metrics.New(),
		Log:          zerolog.Nop(),
		Now:          func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) put(t *testing.T, key, body string) {
	t.Helper()
	require.NoError(t, f.main.Put(context.Background(), key, []byte(body), "application/octet-stream"))
}

func january() Range {
	return Range{Start: civil.Date{Year: 2024, Month: 1, Day: 1}, End: civil.Date{Year: 2024, Month: 1, Day: 31}}
}

func TestParseRange(t *testing.T) {
	rng, err := ParseRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, january(), rng)
	assert.Equal(t, "2024-01-01..2024-01-31", rng.String())

	_, err = ParseRange("", "2024-01-31")
	assert.ErrorIs(t, err, ErrMissingDates)

	_, err = ParseRange("2024-13-01", "2024-01-31")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseRange("2024-02-01", "2024-01-31")
	assert.ErrorIs(t, err, objectstore.ErrInvalidRange)
}

func TestRemovePasswords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, "landing/pdf/20240115-visa.pdf", "pdf-a")
	f.put(t, "landing/pdf/2024/20240120-master.pdf", "locked")
	f.put(t, "landing/pdf/20240301-visa.pdf", "pdf-b")
	f.put(t, "landing/pdf/notes.txt", "ignored")

	rep, err := f.runner.RemovePasswords(ctx, january())
	require.NoError(t, err)

	assert.Equal(t, OpRemovePassword, rep.Operation)
	assert.Equal(t, []string{"mem://raw/bank/pdf/2024/20240115-visa_unlocked.pdf"}, rep.Files)
	require.Len(t, rep.Items, 2)
	require.Len(t, rep.Failed(), 1)
	assert.Equal(t, "mem://raw/landing/pdf/2024/20240120-master.pdf", rep.Failed()[0].Source)
	assert.Contains(t, rep.FailedSources()["mem://raw/landing/pdf/2024/20240120-master.pdf"], "wrong password")

	data, err := f.main.Get(ctx, "bank/pdf/2024/20240115-visa_unlocked.pdf")
	require.NoError(t, err)
	assert.Equal(t, "open:pdf-a", string(data))
}

func TestParseDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, "bank/pdf/2024/20240115-visa_unlocked.pdf", "statement text")
	f.put(t, "bank/pdf/2024/20240116-master_unlocked.pdf", "garbled")

	rep, err := f.runner.ParseDocuments(ctx, january())
	require.NoError(t, err)

	assert.Equal(t, 2, f.extract.calls)
	assert.Equal(t, []string{"mem://raw/bank/json/2024/20240115-visa_unlocked.json"}, rep.Files)
	require.Len(t, rep.Failed(), 1)
	assert.ErrorIs(t, rep.Failed()[0].Err, extraction.ErrNoJSONFound)

	data, err := f.main.Get(ctx, "bank/json/2024/20240115-visa_unlocked.json")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"estado_de_cuenta\": {\n    \"comuna\": \"ÑUÑOA\",\n    \"texto\": \"statement text\"\n  }\n}", string(data))
}

const januaryStatement = `{
  "estado_de_cuenta": {
    "fecha": "15/01/2024",
    "numero_de_tarjeta": "XXXX XXXX XXXX 1234",
    "informacion_de_pago": {
      "monto_facturado": "352.000",
      "vencimiento_proximos_meses": [{"mes": "FEB", "monto": "100.000"}]
    },
    "detalle": {
      "periodo_actual": {
        "operaciones": {
          "pagos_a_la_cuenta": {
            "items": [
              {"fecha": "10/01/2024", "descripcion": "PAGO", "monto_operacion": "-50.000"},
              {"fecha": "12/01/2024", "descripcion": "TIENDA", "monto_operacion": "12.500"}
            ]
          }
        }
      }
    }
  }
}`

func TestStructureData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, "bank/json/2024/20240115-visa_unlocked.json", januaryStatement)
	f.put(t, "bank/json/2024/20240120-broken_unlocked.json", "not json")
	f.put(t, "bank/json/2024/20240215-visa_unlocked.json", januaryStatement)

	rep, err := f.runner.StructureData(ctx, january())
	require.NoError(t, err)

	require.Len(t, rep.Items, 2)
	assert.Len(t, rep.Failed(), 1)
	assert.Equal(t, []string{
		"mem://raw/bank/parquet/2024-statements.parquet",
		"mem://raw/bank/parquet/2024-statement_items.parquet",
		"mem://raw/bank/parquet/2024-statement_upcoming_dues.parquet",
	}, rep.Files)

	data, err := f.main.Get(ctx, "bank/parquet/2024-statement_items.parquet")
	require.NoError(t, err)
	items, err := tables.ReadParquet(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, 2, items.Len())
}

func TestProcessData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.put(t, "bank/json/2024/20240115-visa_unlocked.json", januaryStatement)
	_, err := f.runner.StructureData(ctx, january())
	require.NoError(t, err)

	rep, err := f.runner.ProcessData(ctx, january())
	require.NoError(t, err)

	uri := "mem://silver/bank/parquet/2024-unified-base.parquet"
	assert.Equal(t, []string{uri}, rep.Files)
	require.Len(t, rep.Items, 1)
	assert.Equal(t, "finance.unified_base_2024", rep.Items[0].Output)
	assert.Equal(t, map[string]int{uri: 2024}, f.loader.loaded)

	ok, err := f.silver.Exists(ctx, "bank/parquet/2024-unified-base.parquet")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcessData_NoInputs(t *testing.T) {
	f := newFixture(t)

	rep, err := f.runner.ProcessData(context.Background(), january())
	require.NoError(t, err)
	assert.Empty(t, rep.Files)
	assert.Empty(t, f.loader.loaded)
}

func TestRunDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(t, "landing/pdf/20240115-visa.pdf", "pdf-a")

	rep, err := f.runner.Run(ctx, OpRemovePassword, january())
	require.NoError(t, err)
	assert.Len(t, rep.Processed(), 1)

	_, err = f.runner.Run(ctx, "reticulate", january())
	assert.ErrorContains(t, err, "unknown operation")
}
