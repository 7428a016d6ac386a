// Package preprocess prepares page images for OCR: grayscale conversion
// followed by a 3x3 sharpen.
package preprocess

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	// decoders registered for image.Decode
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/disintegration/gift"

	"github.com/joseph-ayodele/docextract/internal/common"
)

// Image is a preprocessed page written to disk.
type Image struct {
	Index int
	Path  string
}

// sharpen is the kernel [[0,-1,0],[-1,5,-1],[0,-1,0]].
var sharpen = []float32{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// Apply converts img to grayscale and sharpens it. Out-of-bounds taps
// mirror around the edge without repeating it (reflect-101) and results
// saturate to 0..255.
func Apply(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return image.NewGray(image.Rect(0, 0, w, h))
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	gift.New(gift.Grayscale()).Draw(gray, img)

	// gift replicates edge pixels; a one-pixel reflect-101 frame makes the
	// border taps match, and the crop drops the frame again.
	padded := padReflect101(gray)
	g := gift.New(
		gift.Convolution(sharpen, false, false, false, 0),
		gift.Crop(image.Rect(1, 1, w+1, h+1)),
	)
	out := image.NewGray(g.Bounds(padded.Bounds()))
	g.Draw(out, padded)
	return out
}

// padReflect101 returns src framed by one mirrored pixel on every side.
func padReflect101(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w+2, h+2))
	for y := 0; y < h+2; y++ {
		row := src.Pix[reflect101(y-1, h)*src.Stride:]
		for x := 0; x < w+2; x++ {
			dst.Pix[y*dst.Stride+x] = row[reflect101(x-1, w)]
		}
	}
	return dst
}

// Preprocess decodes src, applies the filter and writes a PNG to dst. index
// is the 1-based page the image belongs to.
func Preprocess(index int, src, dst string) (Image, error) {
	f, err := os.Open(src)
	if err != nil {
		return Image{}, fmt.Errorf("%w: open %s: %w", common.ErrDecode, src, err)
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %s: %w", common.ErrDecode, src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Image{}, fmt.Errorf("preprocess: mkdir: %w", err)
	}
	if err := writePNG(dst, Apply(img)); err != nil {
		return Image{}, err
	}
	return Image{Index: index, Path: dst}, nil
}

func writePNG(path string, img image.Image) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("preprocess: create %s: %w", path, err)
	}
	w := bufio.NewWriter(out)
	if err := png.Encode(w, img); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("preprocess: encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("preprocess: write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("preprocess: close %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// reflect101 maps i into [0,n): -1 -> 1, n -> n-2.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
