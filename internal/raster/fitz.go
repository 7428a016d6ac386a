package raster

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
)

// Fitz renders pages in process through MuPDF.
type Fitz struct {
	cfg    Config
	logger *slog.Logger
}

func NewFitz(cfg Config, logger *slog.Logger) *Fitz {
	if cfg.DPI <= 0 {
		cfg.DPI = constants.DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fitz{cfg: cfg, logger: logger}
}

func (f *Fitz) Rasterize(ctx context.Context, pdfPath, targetDir string) ([]PageImage, error) {
	start := time.Now()
	want, err := PageCount(pdfPath)
	if err != nil {
		return nil, err
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", common.ErrConversion, filepath.Base(pdfPath), err)
	}
	defer doc.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("raster: mkdir %s: %w", targetDir, err)
	}

	pageCount := doc.NumPage()
	pages := make([]PageImage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(i, float64(f.cfg.DPI))
		if err != nil {
			return nil, fmt.Errorf("%w: render page %d: %w", common.ErrConversion, i+1, err)
		}
		dst := filepath.Join(targetDir, PageFileName(i+1))
		if err := writePNG(dst, img); err != nil {
			return nil, err
		}
		pages = append(pages, PageImage{Index: i + 1, Path: dst})
	}
	if err := checkCount(pdfPath, pages, want); err != nil {
		return nil, err
	}

	f.logger.Info("raster.fitz.ok",
		"pdf", filepath.Base(pdfPath),
		"pages", len(pages),
		"dpi", f.cfg.DPI,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("raster: create %s: %w", path, err)
	}
	w := bufio.NewWriter(out)
	if err := png.Encode(w, img); err != nil {
		out.Close()
		return fmt.Errorf("raster: encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("raster: write %s: %w", path, err)
	}
	return out.Close()
}
