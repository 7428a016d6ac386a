package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/internal/common"
)

type stubExtractor struct {
	fields Fields
	err    error
	panic  bool
}

func (s stubExtractor) ExtractFields(context.Context, ExtractRequest) (Fields, []byte, error) {
	if s.panic {
		panic("boom")
	}
	return s.fields, nil, s.err
}

func TestExtract_ContainsErrors(t *testing.T) {
	ctx := context.Background()

	out := Extract(ctx, stubExtractor{err: errors.New("backend unreachable")}, "Total 10")
	require.Len(t, out, 1)
	assert.Equal(t, "backend unreachable", out[ErrorKey])

	out = Extract(ctx, stubExtractor{panic: true}, "Total 10")
	assert.Contains(t, out[ErrorKey], "boom")

	out = Extract(ctx, nil, "Total 10")
	assert.NotEmpty(t, out[ErrorKey])

	out = Extract(ctx, stubExtractor{err: errors.New("   ")}, "x")
	assert.Equal(t, "unknown error", out[ErrorKey])
}

func TestExtract_PassesFieldsThrough(t *testing.T) {
	want := Fields{"total": "$325.00", "receipt_number": "12345"}
	assert.Equal(t, want, Extract(context.Background(), stubExtractor{fields: want}, "text"))
}

func TestDecodeFields(t *testing.T) {
	f, raw, err := DecodeFields([]byte("```json\n{\"a\": 1, \"b\": [\"x\"]}\n```"))
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1, "b": ["x"]}`, string(raw))
	assert.Equal(t, float64(1), f["a"])

	for _, bad := range []string{`[1,2]`, `"str"`, `42`, `{"a":`, ``, `not json`} {
		_, _, err := DecodeFields([]byte(bad))
		assert.ErrorIs(t, err, common.ErrExtraction, "input %q", bad)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt(ExtractRequest{OCRText: "  Receipt #12345\nTotal: $325.00  "})
	assert.Contains(t, p, "Identify the fields dynamically")
	assert.Contains(t, p, "\"\"\"\nReceipt #12345\nTotal: $325.00\n\"\"\"")
	assert.True(t, strings.HasSuffix(p, "Return ONLY a valid JSON object."))

	long := BuildUserPrompt(ExtractRequest{OCRText: strings.Repeat("x", maxPromptChars+10)})
	assert.Contains(t, long, "…(truncated)")
}

func TestSendJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	_, code, err := SendJSON(context.Background(), srv.Client(), srv.URL, map[string]any{"a": 1}, map[string]string{"X-Test": "yes"}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, code)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, common.IsRetryable(err))

	assert.False(t, (&StatusError{StatusCode: 400}).Retryable())
	assert.True(t, (&StatusError{StatusCode: 503}).Retryable())
}
