package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/people-extractor/internal/chunk"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/llm"
)

// analyzeChunks processes chunks in order. A chunk that still fails after
// ChunkMaxRetries retries is logged and skipped.
func (c *Client) analyzeChunks(ctx context.Context, req llm.AnalysisRequest, sink llm.PartialSink) (llm.AnalysisResult, error) {
	start := time.Now()
	chunks := chunk.Split(req.Text, c.cfg.ChunkSize)
	total := len(chunks)

	c.logger.Info("analysis.chunked.start",
		"text_len", len(req.Text),
		"chunks", total,
		"chunk_size", c.cfg.ChunkSize,
	)

	var (
		all     []entity.PersonRecord
		confSum float64
		done    int
	)
	for i, text := range chunks {
		if err := c.pacer.Wait(ctx); err != nil {
			return llm.AnalysisResult{}, common.ProviderErr("chunked analysis interrupted", err)
		}

		creq := req
		creq.Text = text
		creq.ChunkIndex = i
		creq.TotalChunks = total

		res, err := c.analyzeChunk(ctx, creq)
		if err != nil {
			if ctx.Err() != nil {
				return llm.AnalysisResult{}, common.ProviderErr("chunked analysis interrupted", err)
			}
			c.logger.Warn("analysis.chunk.skipped", "chunk", i, "total", total, "error", err)
			continue
		}

		done++
		confSum += res.Confidence
		all = append(all, res.People...)

		if sink != nil && len(res.People) > 0 {
			if err := sink.Consume(ctx, llm.Partial{ChunkIndex: i, TotalChunks: total, People: res.People}); err != nil {
				return llm.AnalysisResult{}, fmt.Errorf("partial result sink (chunk %d): %w", i, err)
			}
		}
	}

	if done == 0 {
		c.logger.Error("analysis.chunked.failed", "chunks", total, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.AnalysisResult{}, common.ProviderErr(fmt.Sprintf("all %d chunks failed", total), nil)
	}

	people := llm.MergePeople(all)
	out := llm.AnalysisResult{
		People:          people,
		Confidence:      entity.ClampConfidence(confSum / float64(done)),
		Summary:         fmt.Sprintf("processed %d/%d chunks, %d people", done, total, len(people)),
		TotalChunks:     total,
		ProcessedChunks: done,
	}
	c.logger.Info("analysis.chunked.ok",
		"chunks", total,
		"processed", done,
		"people", len(people),
		"duplicates", len(all)-len(people),
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// analyzeChunk issues one chunk with its own linear retry schedule.
func (c *Client) analyzeChunk(ctx context.Context, req llm.AnalysisRequest) (llm.AnalysisResult, error) {
	var lastErr error
	for retry := 0; retry <= c.cfg.ChunkMaxRetries; retry++ {
		if retry > 0 {
			wait := c.cfg.ChunkRetryDelay * time.Duration(retry)
			c.logger.Warn("analysis.chunk.retry",
				"chunk", req.ChunkIndex,
				"attempt", retry+1,
				"wait_ms", wait.Milliseconds(),
				"error", lastErr,
			)
			if err := sleep(ctx, wait); err != nil {
				return llm.AnalysisResult{}, errors.Join(err, lastErr)
			}
		}

		parsed, err := c.request(ctx, fmt.Sprintf("chunk-%d", req.ChunkIndex), req)
		if err != nil {
			lastErr = err
			continue
		}
		people := parsed.People
		for i := range people {
			people[i].ChunkIndex = req.ChunkIndex
			people[i].TotalChunks = req.TotalChunks
		}
		return llm.AnalysisResult{People: people, Confidence: parsed.Confidence, Summary: parsed.Summary}, nil
	}
	return llm.AnalysisResult{}, lastErr
}
