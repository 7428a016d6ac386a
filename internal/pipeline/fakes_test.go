package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/internal/llm"
	"github.com/joseph-ayodele/docextract/internal/ocr"
	"github.com/joseph-ayodele/docextract/internal/raster"
)

func pngBytes(t testing.TB, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.SetGray(1, 1, color.Gray{Y: 255 - shade})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeRasterizer writes pages page_1..page_N into targetDir.
type fakeRasterizer struct {
	t     testing.TB
	pages int
	err   error
	calls atomic.Int32
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _ string, targetDir string) ([]raster.PageImage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	require.NoError(f.t, os.MkdirAll(targetDir, 0o755))
	out := make([]raster.PageImage, 0, f.pages)
	// returned out of order on purpose
	for i := f.pages; i >= 1; i-- {
		path := filepath.Join(targetDir, raster.PageFileName(i))
		require.NoError(f.t, os.WriteFile(path, pngBytes(f.t, uint8(i*10)), 0o644))
		out = append(out, raster.PageImage{Index: i, Path: path})
	}
	return out, nil
}

// fakeOCR answers by page index parsed from the preprocessed file name.
type fakeOCR struct {
	text  map[int]string
	errs  map[int]error
	delay func(page int) time.Duration
	block bool // wait for ctx.Done

	mu       sync.Mutex
	inFlight int
	maxSeen  int
	langs    []string
}

func (f *fakeOCR) page(path string) int {
	n, _ := raster.ParsePageIndex(path)
	return n
}

func (f *fakeOCR) enter(lang string) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.langs = append(f.langs, lang)
	f.mu.Unlock()
}

func (f *fakeOCR) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeOCR) ExtractText(ctx context.Context, imagePath, lang string) (string, error) {
	f.enter(lang)
	defer f.leave()
	n := f.page(imagePath)
	if f.block {
		<-ctx.Done()
		return "", fmt.Errorf("tesseract killed: %w", ctx.Err())
	}
	if f.delay != nil {
		time.Sleep(f.delay(n))
	}
	if err := f.errs[n]; err != nil {
		return "", err
	}
	if txt, ok := f.text[n]; ok {
		return txt, nil
	}
	return fmt.Sprintf("text of page %d", n), nil
}

func (f *fakeOCR) ExtractTextWithConfidence(ctx context.Context, imagePath, lang string) (ocr.Result, error) {
	txt, err := f.ExtractText(ctx, imagePath, lang)
	if err != nil {
		return ocr.Result{}, err
	}
	return ocr.Result{Text: txt, AverageConfidence: 91.5, WordCount: len(bytes.Fields([]byte(txt)))}, nil
}

// fakeFields echoes the OCR text back as a field.
type fakeFields struct {
	fail  map[string]error
	calls atomic.Int32
	seen  sync.Map // text -> ExtractRequest
}

func (f *fakeFields) ExtractFields(_ context.Context, req llm.ExtractRequest) (llm.Fields, []byte, error) {
	f.calls.Add(1)
	f.seen.Store(req.OCRText, req)
	if err := f.fail[req.OCRText]; err != nil {
		return nil, nil, err
	}
	return llm.Fields{"text": req.OCRText, "page": float64(req.Page)}, nil, nil
}
