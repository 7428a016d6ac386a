package main

import (
	"context"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm/openai"
	"github.com/joseph-ayodele/docextract/internal/observability/metrics"
	"github.com/joseph-ayodele/docextract/internal/ocr"
	"github.com/joseph-ayodele/docextract/internal/output"
	"github.com/joseph-ayodele/docextract/internal/pipeline"
	"github.com/joseph-ayodele/docextract/internal/raster"
	"github.com/joseph-ayodele/docextract/internal/repository"
)

// runFlags are the per-invocation pipeline switches shared by process,
// watch and serve.
type runFlags struct {
	saveText   bool
	confidence bool
	cleanup    bool
}

type app struct {
	db      *repository.DB
	runs    repository.RunRepository
	metrics *metrics.PipelineMetrics
	proc    *pipeline.Processor
}

// openLedger opens the run ledger, or returns nils when STORE_DSN is empty.
func openLedger(ctx context.Context, c *common.Config) (*repository.DB, repository.RunRepository, error) {
	if c.Store.DSN == "" {
		logger.Info("ledger.disabled")
		return nil, nil, nil
	}
	db, err := repository.Open(ctx, repository.Config{
		DSN:             c.Store.DSN,
		MaxConns:        c.Store.MaxConns,
		MaxConnLifetime: c.Store.MaxConnLifetime,
		DialTimeout:     c.Store.DialTimeout,
	}, logger)
	if err != nil {
		return nil, nil, common.WrapError(err, "open ledger")
	}
	return db, repository.NewRunRepository(db, logger), nil
}

// newApp wires the pipeline from cfg. The returned app must be closed.
func newApp(ctx context.Context, c *common.Config, f runFlags) (*app, error) {
	if err := c.RequireLLM(); err != nil {
		return nil, err
	}

	runner := ocr.ExecRunner{Logger: logger}
	rasterizer, err := raster.New(raster.Config{
		Backend:  c.Raster.Backend,
		Pdftoppm: c.Raster.Pdftoppm,
		DPI:      c.Raster.DPI,
	}, runner, logger)
	if err != nil {
		return nil, err
	}

	tess := ocr.NewTesseract(ocr.Config{
		Tesseract:   c.OCR.Tesseract,
		TessdataDir: c.OCR.TessdataDir,
		Lang:        c.OCR.Lang,
		PSM:         c.OCR.PSM,
		OEM:         c.OCR.OEM,
		Normalize:   c.OCR.Normalize,
	}, runner, logger)

	llmClient := openai.NewClient(openai.Config{
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
		RPS:         c.LLM.RPS,
		Burst:       c.LLM.Burst,
	}, logger)

	db, runs, err := openLedger(ctx, c)
	if err != nil {
		return nil, err
	}

	m := metrics.NewPipelineMetrics("docextract")
	deps := pipeline.Deps{
		Rasterizer: rasterizer,
		OCR:        tess,
		Fields:     llmClient,
		Writer:     output.NewWriter(c.Paths.OutputDir),
		Metrics:    m,
		Logger:     logger,
	}
	if runs != nil {
		deps.Ledger = runs
	}

	proc := pipeline.NewProcessor(pipeline.Config{
		WorkDir:        c.Paths.WorkDir,
		Workers:        c.Pipeline.Workers,
		Lang:           c.OCR.Lang,
		OCRTimeout:     c.OCR.Timeout,
		LLMTimeout:     c.LLM.Timeout,
		WithConfidence: f.confidence,
		SaveText:       f.saveText,
		Cleanup:        f.cleanup,
	}, deps)

	logger.Info("app.ready",
		"raster_backend", c.Raster.Backend,
		"workers", c.Pipeline.Workers,
		"output_dir", c.Paths.OutputDir,
		"llm", c.LLM,
	)
	return &app{db: db, runs: runs, metrics: m, proc: proc}, nil
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("ledger.close_failed", "error", err)
		}
	}
}
