package raster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

// Pdftoppm renders pages with poppler's pdftoppm.
type Pdftoppm struct {
	cfg    Config
	runner ocr.Runner
	logger *slog.Logger
}

func NewPdftoppm(cfg Config, runner ocr.Runner, logger *slog.Logger) *Pdftoppm {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = constants.DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ocr.ExecRunner{Logger: logger}
	}
	return &Pdftoppm{cfg: cfg, runner: runner, logger: logger}
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath, targetDir string) ([]PageImage, error) {
	start := time.Now()
	want, err := PageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("raster: mkdir %s: %w", targetDir, err)
	}

	// pdftoppm zero-pads its suffixes based on page count, so render into a
	// staging dir and rename to page_<N>.png.
	staging, err := os.MkdirTemp(targetDir, ".pdftoppm-*")
	if err != nil {
		return nil, fmt.Errorf("raster: staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	prefix := filepath.Join(staging, "page")
	// pdftoppm -r 300 -png <in.pdf> <staging/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", strconv.Itoa(p.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm %s: %w (stderr: %s)", common.ErrConversion, filepath.Base(pdfPath), err, string(errb))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	pages := make([]PageImage, 0, len(matches))
	for _, m := range matches {
		n, ok := ParsePageIndex(m)
		if !ok {
			continue
		}
		dst := filepath.Join(targetDir, PageFileName(n))
		if err := os.Rename(m, dst); err != nil {
			return nil, fmt.Errorf("raster: move page %d: %w", n, err)
		}
		pages = append(pages, PageImage{Index: n, Path: dst})
	}
	SortPages(pages)
	if err := checkCount(pdfPath, pages, want); err != nil {
		return nil, err
	}

	p.logger.Info("raster.pdftoppm.ok",
		"pdf", filepath.Base(pdfPath),
		"pages", len(pages),
		"dpi", p.cfg.DPI,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}
