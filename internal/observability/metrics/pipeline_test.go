package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics_Handler(t *testing.T) {
	m := NewPipelineMetrics("test")
	m.StartPage()
	m.ObserveStage("ocr", 120*time.Millisecond)
	m.FinishPage("OK")
	m.FinishDocument("PDF", "DONE", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `docextract_pipeline_pages_total{service="test",status="OK"} 1`)
	assert.Contains(t, out, `docextract_pipeline_documents_total{service="test",source_type="PDF",status="DONE"} 1`)
	assert.Contains(t, out, `docextract_pipeline_pages_in_flight{service="test"} 0`)
	assert.Contains(t, out, `docextract_pipeline_stage_duration_seconds_count{service="test",stage="ocr"} 1`)
}

func TestPipelineMetrics_NilSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.StartPage()
		m.FinishPage("OK")
		m.ObserveStage("llm", time.Second)
		m.FinishDocument("IMAGE", "DONE", time.Second)
		_ = m.Handler()
	})
}
