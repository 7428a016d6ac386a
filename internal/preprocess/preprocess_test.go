package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/internal/common"
)

func grayFrom(rows [][]uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, r := range rows {
		for x, v := range r {
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return g
}

func TestApply_UniformImageUnchanged(t *testing.T) {
	in := grayFrom([][]uint8{{100, 100, 100}, {100, 100, 100}})
	out := Apply(in)
	assert.Equal(t, in.Pix, out.Pix)
}

func TestApply_SharpensAndSaturates(t *testing.T) {
	in := grayFrom([][]uint8{
		{0, 0, 0},
		{0, 200, 0},
		{0, 0, 0},
	})
	out := Apply(in)
	// centre: 5*200 saturates; edge neighbours: -200 clamps to 0.
	assert.Equal(t, uint8(255), out.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), out.GrayAt(1, 0).Y)
}

func TestApply_Reflect101Border(t *testing.T) {
	in := grayFrom([][]uint8{{10, 20, 30}})
	out := Apply(in)
	// x=0: 5*10 - 20 - 20 (reflected x=-1 -> 1) - 10 - 10 (rows reflect to self) = 0
	// x=2: 5*30 - 20 - 20 (reflected x=3 -> 1) - 30 - 30 = 50
	assert.Equal(t, []uint8{0, 20, 50}, out.Pix)
}

// sharpenReference is the direct 3x3 convolution with reflect-101 borders.
func sharpenReference(in *image.Gray) []uint8 {
	k := [3][3]int{{0, -1, 0}, {-1, 5, -1}, {0, -1, 0}}
	w, h := in.Bounds().Dx(), in.Bounds().Dy()
	out := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += k[ky+1][kx+1] * int(in.GrayAt(reflect101(x+kx, w), reflect101(y+ky, h)).Y)
				}
			}
			out = append(out, uint8(max(0, min(255, sum))))
		}
	}
	return out
}

func TestApply_MatchesDirectConvolution(t *testing.T) {
	in := grayFrom([][]uint8{
		{12, 40, 90, 200, 255},
		{0, 33, 120, 64, 8},
		{77, 150, 20, 190, 45},
		{255, 5, 60, 100, 130},
	})
	out := Apply(in)
	assert.Equal(t, image.Rect(0, 0, 5, 4), out.Bounds())
	assert.Equal(t, sharpenReference(in), out.Pix)
}

func TestApply_ColorInput(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(5, 5, 7, 7))
	for y := 5; y < 7; y++ {
		for x := 5; x < 7; x++ {
			rgba.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	out := Apply(rgba)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, []uint8{255, 255, 255, 255}, out.Pix)
}

func TestPreprocess_Deterministic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")

	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 15), G: uint8(y * 30), B: 77, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o644))

	a, err := Preprocess(3, src, filepath.Join(dir, "a", "out.png"))
	require.NoError(t, err)
	b, err := Preprocess(3, src, filepath.Join(dir, "b", "out.png"))
	require.NoError(t, err)
	assert.Equal(t, 3, a.Index)

	ab, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	bb, err := os.ReadFile(b.Path)
	require.NoError(t, err)
	assert.Equal(t, ab, bb)

	decoded, err := png.Decode(bytes.NewReader(ab))
	require.NoError(t, err)
	assert.Equal(t, color.GrayModel, decoded.ColorModel())
}

func TestPreprocess_DecodeError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	_, err := Preprocess(1, src, filepath.Join(dir, "out.png"))
	assert.ErrorIs(t, err, common.ErrDecode)
	assert.NoFileExists(t, filepath.Join(dir, "out.png"))
}
