package llm

import "context"

// Fields is the open key/value object the model infers from a document.
// Values are untyped JSON.
type Fields map[string]any

// ErrorKey is the key of the contained error form {"error": "..."}.
const ErrorKey = "error"

// ExtractRequest carries the OCR text and hints about where it came from.
type ExtractRequest struct {
	OCRText    string
	SourceName string // original file name, used in logs and prompts
	Page       int    // 1-based page for PDF sources; 0 for single images
}

// FieldExtractor is the interface our pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (Fields, []byte /*rawJSON*/, error)
}
