package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
)

// TextExtractor turns a preprocessed image into text.
type TextExtractor interface {
	ExtractText(ctx context.Context, imagePath, lang string) (string, error)
	ExtractTextWithConfidence(ctx context.Context, imagePath, lang string) (Result, error)
}

type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	TessdataDir string
	Lang        string // default "eng"

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	Timeout   time.Duration // per invocation; 0 = no limit
	Normalize bool
}

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

var _ TextExtractor = (*Tesseract)(nil)

// NewTesseract builds an extractor; a nil runner runs the real binary.
func NewTesseract(cfg Config, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = constants.DefaultOCRLang
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// ExtractText returns the plain text tesseract reads from imagePath.
func (t *Tesseract) ExtractText(ctx context.Context, imagePath, lang string) (string, error) {
	start := time.Now()
	out, err := t.run(ctx, imagePath, lang, false)
	if err != nil {
		return "", err
	}
	txt := string(out)
	if t.cfg.Normalize {
		txt = Normalize(txt)
	}
	t.logger.Debug("ocr.text.ok", "path", imagePath, "chars", len(txt), "duration_ms", time.Since(start).Milliseconds())
	return txt, nil
}

// ExtractTextWithConfidence runs tesseract in TSV mode and aggregates the
// per-word confidences.
func (t *Tesseract) ExtractTextWithConfidence(ctx context.Context, imagePath, lang string) (Result, error) {
	start := time.Now()
	out, err := t.run(ctx, imagePath, lang, true)
	if err != nil {
		return Result{}, err
	}
	res := Aggregate(ParseTSV(out))
	t.logger.Debug("ocr.tsv.ok",
		"path", imagePath,
		"words", res.WordCount,
		"avg_conf", res.AverageConfidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (t *Tesseract) run(ctx context.Context, imagePath, lang string, tsv bool) ([]byte, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	args := t.args(imagePath, lang, tsv)
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, fmt.Errorf("%w: tesseract %s: %w (stderr: %s)", common.ErrOCR, imagePath, err, truncate(string(errb), 512))
	}
	return out, nil
}

// tesseract <img> stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D] [tsv]
func (t *Tesseract) args(imagePath, lang string, tsv bool) []string {
	if lang == "" {
		lang = t.cfg.Lang
	}
	args := []string{imagePath, "stdout", "-l", lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	if tsv {
		args = append(args, "tsv")
	}
	return args
}
