package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/llm"
)

var _ llm.Analyzer = (*Client)(nil)

// Analyze routes text above ChunkThreshold to the chunked path and everything
// else to a single request. sink may be nil.
func (c *Client) Analyze(ctx context.Context, req llm.AnalysisRequest, sink llm.PartialSink) (llm.AnalysisResult, error) {
	if len(req.Text) > c.cfg.ChunkThreshold {
		return c.analyzeChunks(ctx, req, sink)
	}

	res, err := c.AnalyzeSingle(ctx, req)
	if err != nil {
		return llm.AnalysisResult{}, err
	}
	if sink != nil && len(res.People) > 0 {
		if err := sink.Consume(ctx, llm.Partial{ChunkIndex: 0, TotalChunks: 1, People: res.People}); err != nil {
			return llm.AnalysisResult{}, fmt.Errorf("partial result sink: %w", err)
		}
	}
	return res, nil
}

// AnalyzeSingle sends req as one request, retrying every failure up to
// MaxRetries times with exponential backoff from BaseDelay.
func (c *Client) AnalyzeSingle(ctx context.Context, req llm.AnalysisRequest) (llm.AnalysisResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("analysis.single.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(req.Text),
		"extraction_type", req.ExtractionType,
		"source", req.Source,
	)

	var lastErr error
	for retry := 0; ; retry++ {
		parsed, err := c.request(ctx, rid, req)
		if err == nil {
			people := parsed.People
			for i := range people {
				people[i].ChunkIndex = req.ChunkIndex
				people[i].TotalChunks = max(req.TotalChunks, 1)
			}
			c.logger.Info("analysis.single.ok",
				"req_id", rid,
				"attempts", retry+1,
				"people", len(people),
				"confidence", parsed.Confidence,
				"parse_method", parsed.Method,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return llm.AnalysisResult{
				People:          people,
				Confidence:      parsed.Confidence,
				Summary:         parsed.Summary,
				TotalChunks:     1,
				ProcessedChunks: 1,
			}, nil
		}
		lastErr = err
		if retry >= c.cfg.MaxRetries {
			break
		}

		wait := c.cfg.BaseDelay * time.Duration(1<<retry)
		c.logger.Warn("analysis.single.retry",
			"req_id", rid,
			"attempt", retry+1,
			"rate_limited", errors.Is(err, common.ErrRateLimited),
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if err := sleep(ctx, wait); err != nil {
			return llm.AnalysisResult{}, common.ProviderErr("analysis interrupted", errors.Join(err, lastErr))
		}
	}

	c.logger.Error("analysis.single.exhausted",
		"req_id", rid,
		"attempts", c.cfg.MaxRetries+1,
		"error", lastErr,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.AnalysisResult{}, common.ProviderErr(fmt.Sprintf("analysis failed after %d attempts", c.cfg.MaxRetries+1), lastErr)
}

// request performs exactly one provider call and parses its content.
func (c *Client) request(ctx context.Context, rid string, req llm.AnalysisRequest) (llm.ParseResult, error) {
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var httpErr *llm.HTTPError
		if errors.As(err, &httpErr) && httpErr.RateLimited() {
			return llm.ParseResult{}, fmt.Errorf("%w: %w", common.ErrRateLimited, err)
		}
		return llm.ParseResult{}, fmt.Errorf("%w: %w", common.ErrAIProvider, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("analysis.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return llm.ParseResult{}, fmt.Errorf("%w: decode response: %w", common.ErrAIProvider, err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("analysis.no_choices", "req_id", rid, "raw_bytes", len(raw))
		return llm.ParseResult{}, fmt.Errorf("%w: no choices in response", common.ErrAIProvider)
	}

	parsed := llm.ParseResponse(cc.Choices[0].Message.Content)
	if parsed.Method != llm.MethodDirect {
		c.logger.Warn("analysis.response_repaired",
			"req_id", rid,
			"method", parsed.Method,
			"people", len(parsed.People),
		)
	}
	return parsed, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
