// Package ingest discovers documents on disk and feeds them to the pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/output"
	"github.com/joseph-ayodele/docextract/internal/pipeline"
)

// DocumentProcessor is the slice of *pipeline.Processor ingest depends on.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, doc pipeline.SourceDocument, pages []int) (pipeline.RunResult, error)
}

// FileResult is the per-file outcome of a batch.
type FileResult struct {
	Path   string
	RunID  string
	Status constants.RunStatus
	Result pipeline.RunResult
	Err    error
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32 // every page OK
	Partial   uint32
	Failed    uint32
}

func (s *DirStats) add(r FileResult) {
	switch {
	case r.Err != nil, r.Status == constants.RunStatusFailed:
		s.Failed++
	case r.Status == constants.RunStatusPartial:
		s.Partial++
	default:
		s.Succeeded++
	}
}

// ProcessFile loads path and runs every page of it.
func ProcessFile(ctx context.Context, proc DocumentProcessor, path string, pages []int) FileResult {
	doc, err := pipeline.LoadSourceDocument(path)
	if err != nil {
		return FileResult{Path: path, Status: constants.RunStatusFailed, Err: err}
	}
	res, err := proc.ProcessDocument(ctx, doc, pages)
	out := FileResult{Path: path, RunID: res.RunID, Result: res, Err: err}
	if err != nil {
		out.Status = constants.RunStatusFailed
	} else {
		out.Status = res.Status()
	}
	return out
}

// outputKey names the output location a file writes to: <base>.json for an
// image, <base>/ for a PDF. Outputs are flat under the output root.
func outputKey(path string) string {
	base := strings.ToLower(output.BaseName(path))
	if constants.MapExtToFormat(filepath.Ext(path)) == constants.PDF {
		return base + "/"
	}
	return base + ".json"
}

// ProcessDirectory processes every matching file under root, one document
// at a time. Files are independent: one failure never stops the batch.
// A file whose output would replace an earlier file's output in the same
// batch is rejected as failed instead of processed.
func ProcessDirectory(ctx context.Context, proc DocumentProcessor, root string, opts ScanOptions, logger *slog.Logger) ([]FileResult, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	files, stats, err := ScanDirectory(root, opts)
	if err != nil {
		return nil, stats, err
	}
	logger.Info("ingest.dir.start", "root", root, "matched", stats.Matched, "scanned", stats.Scanned)

	results := make([]FileResult, 0, len(files))
	owners := make(map[string]string, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return results, stats, err
		}
		key := outputKey(f)
		if first, ok := owners[key]; ok {
			rel, _ := filepath.Rel(root, first)
			r := FileResult{
				Path:   f,
				Status: constants.RunStatusFailed,
				Err:    fmt.Errorf("%w: output %s already claimed by %s", common.ErrInvalidInput, key, rel),
			}
			stats.add(r)
			results = append(results, r)
			logger.Warn("ingest.file.duplicate_output", "path", f, "output", key, "first", first)
			continue
		}
		owners[key] = f

		r := ProcessFile(ctx, proc, f, nil)
		stats.add(r)
		results = append(results, r)
		if r.Err != nil {
			logger.Error("ingest.file.failed", "path", f, "error", r.Err)
		} else {
			logger.Info("ingest.file.done", "path", f, "run_id", r.RunID, "status", r.Status)
		}
	}
	if stats.Matched > 0 && stats.Succeeded == 0 && stats.Partial == 0 {
		return results, stats, errors.New("no document in the batch produced output")
	}
	return results, stats, nil
}
