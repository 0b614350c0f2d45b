package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentOutcomes(t *testing.T) {
	m := New()

	m.Document("unlock", nil)
	m.Document("unlock", nil)
	m.Document("unlock", errors.New("bad password"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Documents.WithLabelValues("unlock", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("unlock", OutcomeFailed)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Document("parse", nil)
	m.Artifact("statements")
	m.Observe("parse", time.Now())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Artifact("statements")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `statement_pipeline_artifacts_written_total{table="statements"} 1`)
}
