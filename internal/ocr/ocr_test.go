package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/internal/common"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error

	name string
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	return f.stdout, f.stderr, f.err
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90\tHello\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t10\t20\t0\t\n" +
	"5\t1\t1\t1\t1\t3\t90\t10\t50\t20\t80\tWorld\n" +
	"5\t1\t1\t1\t1\t4\t150\t10\t50\t20\t0\tNope\n"

func TestAggregate(t *testing.T) {
	res := Aggregate([]Token{
		{Text: "Hello", Confidence: 90},
		{Text: "", Confidence: 0},
		{Text: "World", Confidence: 80},
		{Text: "Nope", Confidence: 0},
	})
	assert.Equal(t, "Hello World", res.Text)
	assert.Equal(t, 2, res.WordCount)
	assert.InDelta(t, 85.0, res.AverageConfidence, 1e-9)
}

func TestAggregate_RoundsAndHandlesEmpty(t *testing.T) {
	assert.Equal(t, Result{}, Aggregate(nil))
	assert.Equal(t, Result{}, Aggregate([]Token{{Text: "  ", Confidence: 50}, {Text: "x", Confidence: -1}}))

	res := Aggregate([]Token{{Text: "a", Confidence: 90}, {Text: "b", Confidence: 91}, {Text: "c", Confidence: 91}})
	assert.Equal(t, 90.67, res.AverageConfidence)
}

func TestParseTSV(t *testing.T) {
	tokens := ParseTSV([]byte(sampleTSV))
	require.Len(t, tokens, 4)
	assert.Equal(t, Token{Text: "Hello", Confidence: 90}, tokens[0])
	assert.Equal(t, Token{Text: "", Confidence: 0}, tokens[1])

	assert.Nil(t, ParseTSV([]byte("garbage")))
}

func TestTesseract_ExtractTextWithConfidence(t *testing.T) {
	r := &fakeRunner{stdout: []byte(sampleTSV)}
	tess := NewTesseract(Config{PSM: 6, TessdataDir: "/td"}, r, nil)

	res, err := tess.ExtractTextWithConfidence(context.Background(), "page.png", "")
	require.NoError(t, err)
	assert.Equal(t, Result{Text: "Hello World", AverageConfidence: 85, WordCount: 2}, res)

	assert.Equal(t, "tesseract", r.name)
	assert.Equal(t, []string{"page.png", "stdout", "-l", "eng", "--psm", "6", "--tessdata-dir", "/td", "tsv"}, r.args)
}

func TestTesseract_ExtractText(t *testing.T) {
	r := &fakeRunner{stdout: []byte("Invoice\t\t#42\r\n\n\n\nTotal   10.00  \n")}
	tess := NewTesseract(Config{Normalize: true}, r, nil)

	txt, err := tess.ExtractText(context.Background(), "img.png", "deu")
	require.NoError(t, err)
	assert.Equal(t, "Invoice #42\n\nTotal 10.00", txt)
	assert.Equal(t, []string{"img.png", "stdout", "-l", "deu"}, r.args)
}

func TestTesseract_EngineFailure(t *testing.T) {
	r := &fakeRunner{stderr: []byte("Error opening data file"), err: errors.New("exit status 1")}
	tess := NewTesseract(Config{}, r, nil)

	_, err := tess.ExtractText(context.Background(), "img.png", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOCR)

	res := OrEmpty(tess.ExtractTextWithConfidence(context.Background(), "img.png", ""))
	assert.Equal(t, Result{}, res)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "a b\n\nc", Normalize("  a\t b \n-----\n\n\n\nc\n"))
}
