// Package raster turns PDF documents into one PNG per page.
package raster

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

// PageImage is a rendered page. Index is 1-based.
type PageImage struct {
	Index int
	Path  string
}

// Rasterizer renders every page of a PDF into targetDir as page_<N>.png.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, targetDir string) ([]PageImage, error)
}

type Config struct {
	Backend  string // "pdftoppm" (default) | "fitz"
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default constants.DefaultDPI
}

// New picks the backend named in cfg. runner is used by the pdftoppm
// backend only; nil runs the real binary.
func New(cfg Config, runner ocr.Runner, logger *slog.Logger) (Rasterizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = constants.DefaultDPI
	}
	switch cfg.Backend {
	case "", "pdftoppm":
		return NewPdftoppm(cfg, runner, logger), nil
	case "fitz":
		return NewFitz(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: raster backend %q", common.ErrInvalidInput, cfg.Backend)
	}
}

// PageCount reads the number of pages with pdfcpu. A file pdfcpu cannot
// parse is reported as ErrConversion.
func PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("%w: read %s: %w", common.ErrConversion, filepath.Base(pdfPath), err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s has no pages", common.ErrConversion, filepath.Base(pdfPath))
	}
	return n, nil
}

// PageFileName is the canonical name of page n inside a target directory.
func PageFileName(n int) string {
	return fmt.Sprintf("page_%d.png", n)
}

var rePageIndex = regexp.MustCompile(`(\d+)\.[A-Za-z]+$`)

// ParsePageIndex extracts the trailing page number from names such as
// page_12.png or page-012.png.
func ParsePageIndex(name string) (int, bool) {
	m := rePageIndex.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// SortPages orders pages by numeric index, so page 10 follows page 9.
func SortPages(pages []PageImage) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
}

func checkCount(pdfPath string, pages []PageImage, want int) error {
	if len(pages) != want {
		return fmt.Errorf("%w: %s: rendered %d of %d pages", common.ErrConversion, filepath.Base(pdfPath), len(pages), want)
	}
	for i, p := range pages {
		if p.Index != i+1 {
			return fmt.Errorf("%w: %s: missing page %d", common.ErrConversion, filepath.Base(pdfPath), i+1)
		}
	}
	return nil
}
