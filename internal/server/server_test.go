package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
	"github.com/joseph-ayodele/docextract/internal/observability/metrics"
	"github.com/joseph-ayodele/docextract/internal/ocr"
	"github.com/joseph-ayodele/docextract/internal/pipeline"
)

type fakeProcessor struct {
	mu    sync.Mutex
	pages []int
	err   error
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, doc pipeline.SourceDocument, pages []int) (pipeline.RunResult, error) {
	f.mu.Lock()
	f.pages = pages
	f.mu.Unlock()
	if f.err != nil {
		return pipeline.RunResult{RunID: "run-err", Source: doc.Name}, f.err
	}
	return pipeline.RunResult{
		RunID:  "run-1",
		Source: doc.Name,
		Format: doc.Format(),
		Pages: []pipeline.PageOutcome{
			{
				Page:   1,
				Status: constants.PageStatusOK,
				Fields: llm.Fields{"vendor": "ACME", "lines": []any{"a"}},
				Output: "/out/doc_page_1.json",
				OCR:    ocr.Result{WordCount: 12, AverageConfidence: 91.5},
			},
			{
				Page:   2,
				Status: constants.PageStatusNoText,
				Err:    fmt.Errorf("%w: page 2", common.ErrNoText),
			},
		},
		Duration: 1500 * time.Millisecond,
	}, nil
}

func (f *fakeProcessor) selection() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages
}

func startServer(t *testing.T, proc *fakeProcessor, root string) *grpc.ClientConn {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(Options{}, NewDocumentService(proc, root, nil), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return conn
}

func writeDoc(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
	return p
}

func request(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestProcess_ReturnsRunResult(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "doc.pdf")
	proc := &fakeProcessor{}
	conn := startServer(t, proc, "")

	out, err := Process(context.Background(), conn, request(t, map[string]any{
		"path":  path,
		"pages": []any{1, 2},
	}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, proc.selection())

	got := out.AsMap()
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "doc.pdf", got["source"])
	assert.Equal(t, constants.PDF, got["format"])
	assert.Equal(t, string(constants.RunStatusPartial), got["status"])
	assert.Equal(t, float64(1500), got["duration_ms"])

	pages := got["pages"].([]any)
	require.Len(t, pages, 2)
	p1 := pages[0].(map[string]any)
	assert.Equal(t, "OK", p1["status"])
	assert.Equal(t, map[string]any{"vendor": "ACME", "lines": []any{"a"}}, p1["fields"])
	assert.Equal(t, float64(12), p1["word_count"])
	assert.Equal(t, 91.5, p1["avg_confidence"])
	p2 := pages[1].(map[string]any)
	assert.Equal(t, "NO_TEXT", p2["status"])
	assert.Contains(t, p2["error"], "page 2")
	assert.NotContains(t, p2, "fields")
}

func TestProcess_AllPagesWhenSelectionOmitted(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "doc.pdf")
	proc := &fakeProcessor{pages: []int{9}}
	conn := startServer(t, proc, "")

	_, err := Process(context.Background(), conn, request(t, map[string]any{"path": path, "pages": nil}))
	require.NoError(t, err)
	assert.Nil(t, proc.selection())
}

func TestProcess_Errors(t *testing.T) {
	dir := t.TempDir()
	pdf := writeDoc(t, dir, "doc.pdf")
	writeDoc(t, dir, "notes.txt")

	tests := []struct {
		name string
		req  map[string]any
		err  error
		code codes.Code
	}{
		{name: "missing path", req: map[string]any{}, code: codes.InvalidArgument},
		{name: "fractional page", req: map[string]any{"path": pdf, "pages": []any{1.5}}, code: codes.InvalidArgument},
		{name: "pages not a list", req: map[string]any{"path": pdf, "pages": "1"}, code: codes.InvalidArgument},
		{name: "unsupported extension", req: map[string]any{"path": filepath.Join(dir, "notes.txt")}, code: codes.InvalidArgument},
		{name: "missing file", req: map[string]any{"path": filepath.Join(dir, "gone.png")}, code: codes.NotFound},
		{name: "bad selection", req: map[string]any{"path": pdf, "pages": []any{7}}, err: fmt.Errorf("%w: page 7 out of range", common.ErrInvalidSelection), code: codes.InvalidArgument},
		{name: "conversion", req: map[string]any{"path": pdf}, err: fmt.Errorf("%w: broken pdf", common.ErrConversion), code: codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startServer(t, &fakeProcessor{err: tt.err}, "")
			_, err := Process(context.Background(), conn, request(t, tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestProcess_RootConfinesPaths(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "doc.pdf")
	outside := writeDoc(t, t.TempDir(), "other.pdf")
	conn := startServer(t, &fakeProcessor{}, root)

	_, err := Process(context.Background(), conn, request(t, map[string]any{"path": "doc.pdf"}))
	require.NoError(t, err)

	_, err = Process(context.Background(), conn, request(t, map[string]any{"path": outside}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = Process(context.Background(), conn, request(t, map[string]any{"path": "../x.pdf"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestHealth(t *testing.T) {
	conn := startServer(t, &fakeProcessor{}, "")
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestMetricsMux(t *testing.T) {
	m := metrics.NewPipelineMetrics("test")
	m.FinishDocument(constants.PDF, "DONE", time.Second)
	srv := New(Options{}, NewDocumentService(&fakeProcessor{}, "", nil), m, nil)
	h := srv.MetricsMux()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docextract_pipeline_documents_total")
}
