package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
)

var _ llm.FieldExtractor = (*Client)(nil)

// ExtractFields implements llm.FieldExtractor using text-only chat/completions
// in JSON mode.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.Fields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := c.logger.With("req_id", rid, "source", req.SourceName, "page", req.Page)

	log.Info("llm.extract.start",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(req.OCRText),
	)

	if c.cfg.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: missing api key", common.ErrExtraction)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		log.Warn("llm.extract.rate_wait_aborted", "error", err)
		return nil, nil, fmt.Errorf("%w: rate limiter: %w", common.ErrExtraction, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, log)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		log.Error("llm.extract.http_error",
			"status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("%w: %w", common.ErrExtraction, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.Error("llm.extract.decode_error",
			"error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, raw, fmt.Errorf("%w: decode completion: %w", common.ErrExtraction, err)
	}
	if len(cc.Choices) == 0 {
		log.Error("llm.extract.no_choices", "elapsed_ms", time.Since(start).Milliseconds())
		return nil, raw, fmt.Errorf("%w: no choices in response", common.ErrExtraction)
	}

	fields, content, err := llm.DecodeFields([]byte(cc.Choices[0].Message.Content))
	if err != nil {
		log.Error("llm.extract.not_an_object",
			"error", err, "content_bytes", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, content, err
	}

	log.Info("llm.extract.ok",
		"fields", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, content, nil
}
