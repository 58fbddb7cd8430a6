// Package scheduler advances background extraction jobs one chunk per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/chunk"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/dedup"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/extract"
	"github.com/joseph-ayodele/people-extractor/internal/llm"
)

// Config configures the scheduler.
type Config struct {
	// TickInterval is the spacing between ticks. Default: 2 minutes.
	TickInterval time.Duration
	// ChunkSize is the byte length of one chunk. Default: 50,000.
	ChunkSize int
	// ScratchDir holds job source texts and in-flight chunk files.
	ScratchDir string
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = constants.DefaultTickInterval
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = constants.ChunkSize
	}
	if c.ScratchDir == "" {
		c.ScratchDir = filepath.Join(os.TempDir(), "people-jobs")
	}
}

// RecordWriter persists deduplicated records.
type RecordWriter interface {
	InsertRecords(ctx context.Context, scope entity.Scope, records []entity.ScopedPersonRecord) ([]entity.ScopedPersonRecord, error)
}

// SubmitRequest describes a background submission. Text wins over File.
type SubmitRequest struct {
	Text     string
	File     []byte
	FileName string
	Meta     entity.ExtractionMeta
}

// Scheduler owns the job table and the tick loop. Only one tick runs at a
// time, and each tick touches at most one chunk of one job.
type Scheduler struct {
	store     JobStore
	analyzer  llm.Analyzer
	extractor extract.TextExtractor
	dedup     *dedup.Engine
	writer    RecordWriter
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	tickMu sync.Mutex
}

// New creates a Scheduler. store defaults to a MemoryStore.
func New(store JobStore, analyzer llm.Analyzer, extractor extract.TextExtractor, engine *dedup.Engine, writer RecordWriter, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Scheduler{
		store:     store,
		analyzer:  analyzer,
		extractor: extractor,
		dedup:     engine,
		writer:    writer,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit registers a job and returns its id without processing anything.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	text, err := s.resolveText(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, common.WrapError(err, "generate job id")
	}
	if err := os.MkdirAll(s.config.ScratchDir, 0o755); err != nil {
		return uuid.Nil, common.WrapError(err, "create scratch dir")
	}
	path := filepath.Join(s.config.ScratchDir, id.String()+".txt")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return uuid.Nil, common.WrapError(err, "write job source")
	}

	meta := req.Meta
	if strings.TrimSpace(meta.ExtractionType) == "" {
		meta.ExtractionType = constants.DefaultExtractionType
	}
	if strings.TrimSpace(meta.Source) == "" {
		meta.Source = constants.DefaultSource
	}

	job := entity.BackgroundJob{
		ID:             id,
		SourcePath:     path,
		FileName:       req.FileName,
		ExtractionType: meta.ExtractionType,
		Source:         meta.Source,
		Description:    meta.Description,
		Status:         constants.JobStatusPending,
		TotalChunks:    chunk.CountBytes(int64(len(text)), s.config.ChunkSize),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.Create(ctx, job); err != nil {
		_ = os.Remove(path)
		return uuid.Nil, err
	}

	s.logger.Info("scheduler.job.submitted",
		"job_id", id,
		"file", req.FileName,
		"bytes", len(text),
		"total_chunks", job.TotalChunks,
	)
	return id, nil
}

func (s *Scheduler) resolveText(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Text) != "" {
		return req.Text, nil
	}
	if len(req.File) == 0 {
		return "", common.ValidationErr("file is required")
	}
	kind := constants.MapExtToKind(filepath.Ext(req.FileName))
	if kind == constants.UNKNOWN {
		return "", common.ValidationErr(fmt.Sprintf("unsupported file type %q", filepath.Ext(req.FileName)))
	}
	if s.extractor == nil {
		return "", common.TextExtractionErr("no text extractor configured", nil)
	}
	res, err := s.extractor.Extract(ctx, req.File, kind)
	if err != nil {
		return "", common.TextExtractionErr("no text extracted from "+req.FileName, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", common.TextExtractionErr("no text extracted from "+req.FileName, nil)
	}
	return res.Text, nil
}

// Get returns one job.
func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (entity.BackgroundJob, error) {
	return s.store.Get(ctx, id)
}

// List returns every job in creation order.
func (s *Scheduler) List(ctx context.Context) ([]entity.BackgroundJob, error) {
	return s.store.List(ctx)
}

// Run ticks every TickInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler.started", "tick_interval", s.config.TickInterval, "chunk_size", s.config.ChunkSize)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler.stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessOneTick(ctx); err != nil {
				s.logger.Error("scheduler.tick.error", "error", err)
			}
		}
	}
}

// ProcessOneTick advances the first eligible job by one chunk and returns it
// as stored after the tick, or nil when nothing was eligible. A failing chunk
// fails its job; the returned error reports job store failures only.
func (s *Scheduler) ProcessOneTick(ctx context.Context) (*entity.BackgroundJob, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	job, ok := SelectNext(jobs)
	if !ok {
		s.logger.Debug("scheduler.tick.noop", "jobs", len(jobs))
		return nil, nil
	}

	start := s.now()
	job = MarkStarted(job, start.UTC())
	if err := s.store.Update(ctx, job); err != nil {
		return nil, err
	}

	found, err := s.processChunk(ctx, job)
	if err != nil {
		job = MarkFailed(job, common.JobFailureErr(job.ID.String(), err), s.now().UTC())
		s.logger.Error("scheduler.job.failed",
			"job_id", job.ID,
			"chunk", job.ProcessedChunks,
			"total_chunks", job.TotalChunks,
			"error", err,
		)
	} else {
		job = MarkChunkDone(job, found, s.now().UTC())
		s.logger.Info("scheduler.chunk.done",
			"job_id", job.ID,
			"processed", job.ProcessedChunks,
			"total_chunks", job.TotalChunks,
			"stored", found,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}

	if job.Status.Terminal() {
		if err := os.Remove(job.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("scheduler.source.remove_failed", "job_id", job.ID, "error", err)
		}
		if job.Status == constants.JobStatusCompleted {
			s.logger.Info("scheduler.job.completed", "job_id", job.ID, "people", job.PeopleFound)
		}
	}
	if err := s.store.Update(ctx, job); err != nil {
		return nil, err
	}
	return &job, nil
}

// processChunk analyzes chunk number job.ProcessedChunks and stores its
// people in the shared corpus. It returns how many records were inserted.
func (s *Scheduler) processChunk(ctx context.Context, job entity.BackgroundJob) (int, error) {
	index := job.ProcessedChunks
	text, err := readChunk(job.SourcePath, int64(index)*int64(s.config.ChunkSize), s.config.ChunkSize)
	if err != nil {
		return 0, err
	}

	scratch := filepath.Join(s.config.ScratchDir, fmt.Sprintf("%s.chunk-%d.txt", job.ID, index))
	if err := os.WriteFile(scratch, []byte(text), 0o600); err != nil {
		return 0, fmt.Errorf("write chunk: %w", err)
	}
	defer func() {
		if err := os.Remove(scratch); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("scheduler.chunk.remove_failed", "path", scratch, "error", err)
		}
	}()

	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	res, err := s.analyzer.AnalyzeSingle(ctx, llm.AnalysisRequest{
		Text:           text,
		ExtractionType: job.ExtractionType,
		Source:         job.Source,
		Description:    job.Description,
		ChunkIndex:     index,
		TotalChunks:    job.TotalChunks,
	})
	if err != nil {
		return 0, err
	}

	people := make([]entity.PersonRecord, len(res.People))
	for i, p := range res.People {
		p.BatchID = job.BatchID()
		p.Source = job.Source
		p.ExtractionType = job.ExtractionType
		p.Status = constants.RecordStatusProcessed
		p.ChunkIndex = index
		p.TotalChunks = job.TotalChunks
		people[i] = p
	}

	shared := entity.SharedScope()
	keep, err := s.dedup.Filter(ctx, people, shared)
	if err != nil {
		return 0, common.PersistenceErr("dedup chunk", err)
	}
	inserted, err := s.writer.InsertRecords(ctx, shared, keep)
	if err != nil {
		return 0, err
	}
	return len(inserted), nil
}

// readChunk reads up to size bytes at off. Bytes of a rune cut by either
// boundary are dropped.
func readChunk(path string, off int64, size int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open job source: %w", err)
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read chunk at %d: %w", off, err)
	}
	return strings.ToValidUTF8(string(buf[:n]), ""), nil
}
