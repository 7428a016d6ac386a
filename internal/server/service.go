package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/ingest"
	"github.com/joseph-ayodele/docextract/internal/pipeline"
)

// DocumentService runs the pipeline for one document per request.
//
// Request:  {"path": "invoice.pdf", "pages": [1, 3]}
// Response: {"run_id", "source", "format", "status", "duration_ms", "pages": [...]}
//
// Page-level failures are reported inside the response; only request and
// document-level errors become gRPC status errors.
type DocumentService struct {
	proc   ingest.DocumentProcessor
	root   string
	logger *slog.Logger
}

// NewDocumentService builds the service. A non-empty root confines request
// paths to that directory; relative paths resolve against it.
func NewDocumentService(proc ingest.DocumentProcessor, root string, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{proc: proc, root: root, logger: logger}
}

func (s *DocumentService) Process(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path, pages, err := parseRequest(req)
	if err != nil {
		s.logger.Warn("server.process.bad_request", "error", err)
		return nil, err
	}
	if path, err = s.resolve(path); err != nil {
		s.logger.Warn("server.process.bad_path", "path", path, "error", err)
		return nil, err
	}

	s.logger.Info("server.process.start", "path", path, "pages", pages)
	fr := ingest.ProcessFile(ctx, s.proc, path, pages)
	if fr.Err != nil {
		s.logger.Warn("server.process.failed", "path", path, "run_id", fr.RunID, "error", fr.Err)
		return nil, common.ToStatus(fr.Err)
	}

	out, err := runToStruct(fr.Result)
	if err != nil {
		s.logger.Error("server.process.encode_failed", "run_id", fr.RunID, "error", err)
		return nil, common.InternalError("encode result: " + err.Error())
	}
	s.logger.Info("server.process.ok", "path", path, "run_id", fr.RunID, "status", fr.Status, "pages", len(fr.Result.Pages))
	return out, nil
}

func (s *DocumentService) resolve(path string) (string, error) {
	if s.root == "" {
		return filepath.Clean(path), nil
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", common.InternalError("resolve root: " + err.Error())
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", status.Error(codes.PermissionDenied, "path is outside the served root")
	}
	return path, nil
}

// parseRequest reads path and the optional page selection. A missing or
// null "pages" selects every page.
func parseRequest(req *structpb.Struct) (string, []int, error) {
	fields := req.GetFields()
	path := strings.TrimSpace(fields["path"].GetStringValue())
	if path == "" {
		return "", nil, common.InvalidArgumentError("path is required")
	}

	pv, ok := fields["pages"]
	if !ok {
		return path, nil, nil
	}
	switch kind := pv.GetKind().(type) {
	case *structpb.Value_NullValue:
		return path, nil, nil
	case *structpb.Value_ListValue:
		values := kind.ListValue.GetValues()
		pages := make([]int, 0, len(values))
		for i, v := range values {
			num, isNum := v.GetKind().(*structpb.Value_NumberValue)
			if !isNum || num.NumberValue != math.Trunc(num.NumberValue) || math.Abs(num.NumberValue) > math.MaxInt32 {
				return "", nil, common.InvalidArgumentErrorf("pages[%d] must be an integer", i)
			}
			pages = append(pages, int(num.NumberValue))
		}
		return path, pages, nil
	default:
		return "", nil, common.InvalidArgumentError("pages must be a list of integers")
	}
}

func runToStruct(res pipeline.RunResult) (*structpb.Struct, error) {
	pages := make([]any, 0, len(res.Pages))
	for _, o := range res.Pages {
		p := map[string]any{
			"page":        o.Page,
			"status":      string(o.Status),
			"retryable":   o.Retryable,
			"duration_ms": o.Duration.Milliseconds(),
		}
		if o.Fields != nil {
			p["fields"] = map[string]any(o.Fields)
		}
		if o.Err != nil {
			p["error"] = o.Err.Error()
		}
		if o.Output != "" {
			p["output"] = o.Output
		}
		if o.TextPath != "" {
			p["text_path"] = o.TextPath
		}
		if o.OCR.WordCount > 0 {
			p["word_count"] = o.OCR.WordCount
			p["avg_confidence"] = o.OCR.AverageConfidence
		}
		pages = append(pages, p)
	}
	out, err := structpb.NewStruct(map[string]any{
		"run_id":      res.RunID,
		"source":      res.Source,
		"format":      res.Format,
		"status":      string(res.Status()),
		"duration_ms": res.Duration.Milliseconds(),
		"pages":       pages,
	})
	if err != nil {
		return nil, fmt.Errorf("struct: %w", err)
	}
	return out, nil
}
