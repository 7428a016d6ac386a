package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docextract/internal/output"
	"github.com/joseph-ayodele/docextract/internal/repository"
)

const (
	sheetRuns   = "Runs"
	sheetPages  = "Pages"
	sheetFields = "Fields"
)

// Service is a tiny façade over the run ledger that produces XLSX bytes.
type Service struct {
	runs   repository.RunRepository
	logger *slog.Logger
}

func NewService(runs repository.RunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

// ExportRunsXLSX returns a workbook with one sheet of runs, one of page
// outcomes and one with the top-level fields of every persisted page.
// limit <= 0 exports every run.
func (s *Service) ExportRunsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_failed", "error", err)
		}
	}()

	// the default sheet becomes Runs
	if err := f.SetSheetName("Sheet1", sheetRuns); err != nil {
		return nil, err
	}
	for _, name := range []string{sheetPages, sheetFields} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	writeRow(f, sheetRuns, 1, "Run ID", "Source", "Type", "Status", "Pages", "Started", "Finished")
	writeRow(f, sheetPages, 1, "Run ID", "Source", "Page", "Status", "Words", "Avg Confidence", "Duration (ms)", "Output", "Error", "Retryable")
	writeRow(f, sheetFields, 1, "Run ID", "Source", "Page", "Field", "Value")

	runRow, pageRow, fieldRow := 2, 2, 2
	for _, r := range runs {
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.UTC().Format(time.RFC3339)
		}
		writeRow(f, sheetRuns, runRow, r.ID, r.Source, r.SourceType, r.Status, r.PageCount, r.StartedAt.UTC().Format(time.RFC3339), finished)
		runRow++

		outs, err := s.runs.ListOutcomes(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("query outcomes for %s: %w", r.ID, err)
		}
		for _, o := range outs {
			writeRow(f, sheetPages, pageRow, o.RunID, r.Source, o.Page, o.Status, o.WordCount, o.AvgConfidence, o.DurationMS, o.OutputPath, truncate(o.Error, 500), o.Retryable)
			pageRow++

			if o.OutputPath == "" {
				continue
			}
			fields, err := output.Load(o.OutputPath)
			if err != nil {
				if !os.IsNotExist(err) {
					s.logger.Warn("export.fields.load_failed", "path", o.OutputPath, "error", err)
				}
				continue
			}
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				writeRow(f, sheetFields, fieldRow, o.RunID, r.Source, o.Page, k, cellValue(fields[k]))
				fieldRow++
			}
		}
	}

	_ = f.SetColWidth(sheetRuns, "A", "A", 38)
	_ = f.SetColWidth(sheetRuns, "B", "B", 36)
	_ = f.SetColWidth(sheetRuns, "F", "G", 22)
	_ = f.SetColWidth(sheetPages, "A", "B", 36)
	_ = f.SetColWidth(sheetPages, "H", "I", 60)
	_ = f.SetColWidth(sheetFields, "A", "B", 36)
	_ = f.SetColWidth(sheetFields, "D", "E", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"runs", len(runs),
		"pages", pageRow-2,
		"fields", fieldRow-2,
		"bytes", buf.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// cellValue keeps scalars as-is and renders objects/arrays as compact JSON.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, float64:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
