// Package pipeline runs documents through rasterize, preprocess, OCR and
// field extraction, and persists the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
	"github.com/joseph-ayodele/docextract/internal/observability/metrics"
	"github.com/joseph-ayodele/docextract/internal/ocr"
	"github.com/joseph-ayodele/docextract/internal/output"
	"github.com/joseph-ayodele/docextract/internal/preprocess"
	"github.com/joseph-ayodele/docextract/internal/raster"
	"github.com/joseph-ayodele/docextract/internal/repository"
)

// Ledger records runs and page outcomes. repository.RunRepository satisfies it.
type Ledger interface {
	StartRun(ctx context.Context, run repository.Run) error
	RecordPage(ctx context.Context, rec repository.PageRecord) error
	FinishRun(ctx context.Context, runID, status string, pageCount int) error
}

type Config struct {
	WorkDir        string
	Workers        int           // default 4
	Lang           string        // OCR language; empty uses the extractor default
	OCRTimeout     time.Duration // per OCR call; 0 = none
	LLMTimeout     time.Duration // per extraction call; 0 = none
	WithConfidence bool          // use the TSV/confidence OCR variant
	SaveText       bool          // write raw OCR text next to each JSON
	Cleanup        bool          // remove the run workspace when the run ends
}

// Deps are the collaborators a Processor drives. Ledger and Metrics are optional.
type Deps struct {
	Rasterizer raster.Rasterizer
	OCR        ocr.TextExtractor
	Fields     llm.FieldExtractor
	Writer     *output.Writer
	Ledger     Ledger
	Metrics    *metrics.PipelineMetrics
	Logger     *slog.Logger
}

// Processor coordinates the per-page stages for one document at a time.
type Processor struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time
	ids  func() string
}

func NewProcessor(cfg Config, deps Deps) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "./temp"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:  cfg,
		deps: deps,
		log:  logger,
		now:  time.Now,
		ids:  func() string { return uuid.New().String() },
	}
}

// ProcessImage runs a single image file through the pipeline and returns its
// fields. Blank OCR output yields ErrNoText without calling the extractor.
func (p *Processor) ProcessImage(ctx context.Context, imagePath string) (llm.Fields, error) {
	doc, err := LoadSourceDocument(imagePath)
	if err != nil {
		return nil, err
	}
	if doc.IsPDF() {
		return nil, fmt.Errorf("%w: %s is a pdf", common.ErrUnsupported, doc.Name)
	}
	res, err := p.ProcessDocument(ctx, doc, nil)
	if err != nil {
		return nil, err
	}
	out := res.Pages[0]
	return out.Fields, out.Err
}

// ProcessDocument processes the selected 1-based pages of doc. A nil
// selection means every page; an empty one is rejected. Page failures are
// reported on their outcome and never stop other pages. Only an
// unsupported source, an invalid selection or a rasterization failure
// return an error.
func (p *Processor) ProcessDocument(ctx context.Context, doc SourceDocument, pages []int) (RunResult, error) {
	start := p.now()
	format := doc.Format()
	res := RunResult{RunID: p.ids(), Source: doc.Name, Format: format}
	if format == "" {
		return res, fmt.Errorf("%w: %s", common.ErrUnsupported, doc.Name)
	}

	log := p.log.With("run_id", res.RunID, "source", doc.Name)
	ctx = common.WithLogger(common.WithRunID(ctx, res.RunID), log)

	ws, err := NewWorkspace(p.cfg.WorkDir, res.RunID)
	if err != nil {
		return res, err
	}
	res.Workspace = ws.Root
	if p.cfg.Cleanup {
		defer func() {
			if err := ws.Remove(); err != nil {
				log.Warn("pipeline.workspace.cleanup_failed", "error", err)
			}
		}()
	}

	srcPath, err := ws.WriteSource(doc)
	if err != nil {
		return res, err
	}

	p.ledgerStart(ctx, res)
	log.Info("pipeline.run.start", "format", format, "bytes", len(doc.Content))

	var targets []pageTarget
	if doc.IsPDF() {
		targets, err = p.pdfTargets(ctx, srcPath, ws, pages)
	} else {
		targets, err = imageTargets(srcPath, pages)
	}
	if err != nil {
		log.Error("pipeline.run.aborted", "error", err)
		p.ledgerFinish(ctx, res.RunID, constants.RunStatusFailed, 0)
		p.deps.Metrics.FinishDocument(format, string(constants.RunStatusFailed), p.now().Sub(start))
		return res, err
	}

	res.Pages = p.runPages(ctx, doc, ws, targets)
	res.Duration = p.now().Sub(start)

	status := res.Status()
	p.ledgerFinish(ctx, res.RunID, status, len(res.Pages))
	p.deps.Metrics.FinishDocument(format, string(status), res.Duration)
	log.Info("pipeline.run.done",
		"status", status,
		"pages", len(res.Pages),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// pageTarget is one unit of work. pdf selects the page output layout.
type pageTarget struct {
	index int
	image string
	pdf   bool
}

func imageTargets(srcPath string, pages []int) ([]pageTarget, error) {
	if pages != nil {
		if err := ValidateSelection(pages, 1); err != nil {
			return nil, err
		}
	}
	return []pageTarget{{index: 1, image: srcPath}}, nil
}

func (p *Processor) pdfTargets(ctx context.Context, srcPath string, ws *Workspace, pages []int) ([]pageTarget, error) {
	if p.deps.Rasterizer == nil {
		return nil, fmt.Errorf("%w: no rasterizer configured", common.ErrConversion)
	}
	// reject an empty selection before paying for rasterization
	if pages != nil && len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages selected", common.ErrInvalidSelection)
	}

	start := p.now()
	images, err := p.deps.Rasterizer.Rasterize(ctx, srcPath, ws.PagesDir())
	p.deps.Metrics.ObserveStage("raster", p.now().Sub(start))
	if err != nil {
		if !errors.Is(err, common.ErrConversion) {
			err = fmt.Errorf("%w: %w", common.ErrConversion, err)
		}
		return nil, err
	}
	raster.SortPages(images)

	if pages == nil {
		pages = make([]int, len(images))
		for i := range images {
			pages[i] = i + 1
		}
	}
	if err := ValidateSelection(pages, len(images)); err != nil {
		return nil, err
	}

	byIndex := make(map[int]string, len(images))
	for _, img := range images {
		byIndex[img.Index] = img.Path
	}
	targets := make([]pageTarget, 0, len(pages))
	for _, n := range SortedSelection(pages) {
		path, ok := byIndex[n]
		if !ok {
			return nil, fmt.Errorf("%w: page %d was not rendered", common.ErrConversion, n)
		}
		targets = append(targets, pageTarget{index: n, image: path, pdf: true})
	}
	return targets, nil
}

// runPages fans targets out over a bounded pool. Each worker writes only
// its own slot, so outcomes come back in target order.
func (p *Processor) runPages(ctx context.Context, doc SourceDocument, ws *Workspace, targets []pageTarget) []PageOutcome {
	outcomes := make([]PageOutcome, len(targets))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = p.runPage(ctx, doc, ws, t)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Processor) runPage(ctx context.Context, doc SourceDocument, ws *Workspace, t pageTarget) (out PageOutcome) {
	log := common.LoggerFromContext(ctx, p.log).With("page", t.index)
	start := p.now()
	out.Page = t.index

	p.deps.Metrics.StartPage()
	defer func() {
		out.Duration = p.now().Sub(start)
		if out.Err != nil {
			out.Retryable = common.IsRetryable(out.Err)
		}
		p.deps.Metrics.FinishPage(string(out.Status))
		p.ledgerRecord(ctx, out)
		switch out.Status {
		case constants.PageStatusOK:
			log.Info("pipeline.page.ok", "output", out.Output, "fields", len(out.Fields), "duration_ms", out.Duration.Milliseconds())
		case constants.PageStatusNoText:
			log.Warn("pipeline.page.no_text", "error", out.Err)
		default:
			log.Error("pipeline.page.failed", "error", out.Err, "retryable", out.Retryable)
		}
	}()

	if err := ctx.Err(); err != nil {
		return failed(out, err)
	}

	// preprocess
	stage := p.now()
	pre, err := preprocess.Preprocess(t.index, t.image, ws.PreprocessedPath(t.index))
	p.deps.Metrics.ObserveStage("preprocess", p.now().Sub(stage))
	if err != nil {
		return failed(out, err)
	}

	// ocr
	stage = p.now()
	text, stats, err := p.extractText(ctx, pre.Path)
	p.deps.Metrics.ObserveStage("ocr", p.now().Sub(stage))
	out.OCR = stats
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return failed(out, fmt.Errorf("%w: %w", ctxErr, err))
		}
		// a timed-out engine is a failed page, not a blank one
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(out, err)
		}
		out.Status = constants.PageStatusNoText
		out.Err = fmt.Errorf("%w: %w", common.ErrNoText, err)
		return out
	}
	if strings.TrimSpace(text) == "" {
		out.Status = constants.PageStatusNoText
		out.Err = common.ErrNoText
		return out
	}

	// fields
	stage = p.now()
	fields, err := p.extractFields(ctx, llm.ExtractRequest{OCRText: text, SourceName: doc.Name, Page: pageHint(t)})
	p.deps.Metrics.ObserveStage("llm", p.now().Sub(stage))
	if err != nil {
		return failed(out, err)
	}
	out.Fields = fields

	// persist
	path, err := p.persist(doc, t, fields)
	if err != nil {
		out.Fields = nil
		return failed(out, err)
	}
	out.Output = path
	if p.cfg.SaveText {
		if txt, err := p.deps.Writer.WriteText(path, text); err != nil {
			log.Warn("pipeline.page.save_text_failed", "error", err)
		} else {
			out.TextPath = txt
		}
	}
	out.Status = constants.PageStatusOK
	return out
}

func (p *Processor) extractText(ctx context.Context, imagePath string) (string, ocr.Result, error) {
	if p.deps.OCR == nil {
		return "", ocr.Result{}, fmt.Errorf("%w: no text extractor configured", common.ErrOCR)
	}
	if p.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.OCRTimeout)
		defer cancel()
	}
	if p.cfg.WithConfidence {
		res, err := p.deps.OCR.ExtractTextWithConfidence(ctx, imagePath, p.cfg.Lang)
		if err != nil {
			return "", ocr.Result{}, err
		}
		return res.Text, res, nil
	}
	text, err := p.deps.OCR.ExtractText(ctx, imagePath, p.cfg.Lang)
	if err != nil {
		return "", ocr.Result{}, err
	}
	return text, ocr.Result{Text: text, WordCount: len(strings.Fields(text))}, nil
}

func (p *Processor) extractFields(ctx context.Context, req llm.ExtractRequest) (llm.Fields, error) {
	if p.deps.Fields == nil {
		return nil, fmt.Errorf("%w: no field extractor configured", common.ErrExtraction)
	}
	if p.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.LLMTimeout)
		defer cancel()
	}
	fields, _, err := p.deps.Fields.ExtractFields(ctx, req)
	if err != nil {
		if !errors.Is(err, common.ErrExtraction) {
			err = fmt.Errorf("%w: %w", common.ErrExtraction, err)
		}
		return nil, err
	}
	if fields == nil {
		fields = llm.Fields{}
	}
	return fields, nil
}

func (p *Processor) persist(doc SourceDocument, t pageTarget, fields llm.Fields) (string, error) {
	if p.deps.Writer == nil {
		return "", fmt.Errorf("%w: no output writer configured", common.ErrPersistence)
	}
	if t.pdf {
		return p.deps.Writer.WritePage(doc.Name, t.index, fields)
	}
	return p.deps.Writer.WriteImage(doc.Name, fields)
}

func pageHint(t pageTarget) int {
	if t.pdf {
		return t.index
	}
	return 0
}

func failed(out PageOutcome, err error) PageOutcome {
	out.Status = constants.PageStatusFailed
	out.Err = err
	return out
}

func (p *Processor) ledgerStart(ctx context.Context, res RunResult) {
	if p.deps.Ledger == nil {
		return
	}
	err := p.deps.Ledger.StartRun(context.WithoutCancel(ctx), repository.Run{
		ID:         res.RunID,
		Source:     res.Source,
		SourceType: res.Format,
		Status:     string(constants.RunStatusRunning),
		StartedAt:  p.now(),
	})
	if err != nil {
		common.LoggerFromContext(ctx, p.log).Warn("pipeline.ledger.start_failed", "error", err)
	}
}

func (p *Processor) ledgerRecord(ctx context.Context, out PageOutcome) {
	if p.deps.Ledger == nil {
		return
	}
	rec := repository.PageRecord{
		RunID:         common.RunIDFromContext(ctx),
		Page:          out.Page,
		Status:        string(out.Status),
		OutputPath:    out.Output,
		Retryable:     out.Retryable,
		WordCount:     out.OCR.WordCount,
		AvgConfidence: out.OCR.AverageConfidence,
		DurationMS:    out.Duration.Milliseconds(),
		CreatedAt:     p.now(),
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	// the run context may already be cancelled; the outcome still belongs in the ledger
	if err := p.deps.Ledger.RecordPage(context.WithoutCancel(ctx), rec); err != nil {
		common.LoggerFromContext(ctx, p.log).Warn("pipeline.ledger.record_failed", "page", out.Page, "error", err)
	}
}

func (p *Processor) ledgerFinish(ctx context.Context, runID string, status constants.RunStatus, pages int) {
	if p.deps.Ledger == nil {
		return
	}
	if err := p.deps.Ledger.FinishRun(context.WithoutCancel(ctx), runID, string(status), pages); err != nil {
		common.LoggerFromContext(ctx, p.log).Warn("pipeline.ledger.finish_failed", "error", err)
	}
}
