package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/dedup"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/extract"
	"github.com/joseph-ayodele/people-extractor/internal/llm"
	"github.com/joseph-ayodele/people-extractor/internal/repository"
)

// ExtractRequest is one synchronous submission. Text wins over File when both
// are set; FileName's extension picks the extractor for File.
type ExtractRequest struct {
	Text     string
	File     []byte
	FileName string
	Meta     entity.ExtractionMeta
	Scope    entity.Scope
}

// Orchestrator runs synchronous extractions: batch id, short-circuit,
// analysis with incremental dedup and persistence.
type Orchestrator struct {
	logger    *slog.Logger
	analyzer  llm.Analyzer
	extractor extract.TextExtractor
	people    repository.PersonRepository
	batches   repository.BatchRepository
	dedup     *dedup.Engine

	// detachTimeout bounds work that outlives a disconnected caller; zero
	// means no bound beyond the provider's own timeouts.
	detachTimeout time.Duration
	now           func() time.Time
}

func NewOrchestrator(
	logger *slog.Logger,
	analyzer llm.Analyzer,
	extractor extract.TextExtractor,
	people repository.PersonRepository,
	batches repository.BatchRepository,
	engine *dedup.Engine,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:    logger,
		analyzer:  analyzer,
		extractor: extractor,
		people:    people,
		batches:   batches,
		dedup:     engine,
		now:       time.Now,
	}
}

// WithDetachTimeout bounds extractions that continue after their caller
// disconnected.
func (o *Orchestrator) WithDetachTimeout(d time.Duration) *Orchestrator {
	o.detachTimeout = d
	return o
}

// Extract runs the full synchronous pipeline. It returns an error only for
// invalid input, failed text extraction, exhausted provider retries and
// persistence failures; finding nobody is a successful, empty result.
func (o *Orchestrator) Extract(ctx context.Context, req ExtractRequest) (entity.ExtractionResult, error) {
	start := o.now()
	// The caller going away must not abandon a provider call or its writes.
	ctx, cancel := common.Detached(ctx, o.detachTimeout)
	defer cancel()

	text, err := o.resolveText(ctx, req)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	meta := normalizeMeta(req.Meta)
	scope := req.Scope

	hash := ContentHash(text)
	batch, err := o.resolveBatch(ctx, hash, scope)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	batchID := batch.ID
	log := o.logger.With("batch_id", batchID, "scope", scope.Key(), "request_id", common.RequestIDFromContext(ctx))

	// Only a completed analysis is reused; a failed one may have stored part
	// of its increments and runs again.
	if batch.Processed() {
		return o.shortCircuit(ctx, log, scope, batchID, meta, start)
	}
	if existing, err := o.people.CountByBatch(ctx, scope, batchID); err != nil {
		return entity.ExtractionResult{}, err
	} else if existing > 0 {
		log.Warn("orchestrator.batch.resume", "stored", existing)
	}

	log.Info("orchestrator.extract.start", "text_len", len(text), "extraction_type", meta.ExtractionType, "source", meta.Source)

	stored := 0
	sink := llm.SinkFunc(func(ctx context.Context, p llm.Partial) error {
		n, err := o.persist(ctx, scope, batchID, meta, p)
		stored += n
		return err
	})

	res, err := o.analyzer.Analyze(ctx, llm.AnalysisRequest{
		Text:           text,
		ExtractionType: meta.ExtractionType,
		Source:         meta.Source,
		Description:    meta.Description,
	}, sink)
	if err != nil {
		log.Error("orchestrator.extract.failed", "stored", stored, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.ExtractionResult{}, err
	}
	if err := o.batches.MarkProcessed(ctx, scope, batchID, o.now()); err != nil {
		return entity.ExtractionResult{}, err
	}

	people := make([]entity.PersonRecord, len(res.People))
	for i, p := range res.People {
		people[i] = stamp(p, batchID, meta)
	}

	out := entity.ExtractionResult{
		Success: true,
		People:  people,
		Metadata: entity.ResultMetadata{
			TotalPeople:    len(people),
			ExtractionType: meta.ExtractionType,
			Source:         meta.Source,
			ProcessedAt:    o.now().UTC(),
			Confidence:     res.Confidence,
			BatchID:        batchID,
			TotalChunks:    max(res.TotalChunks, 1),
		},
		ProcessingTime: time.Since(start),
	}
	if len(people) == 0 {
		out.Metadata.Confidence = constants.ConfidenceFailed
		out.Message = "no people found in the provided text"
	} else {
		out.Message = fmt.Sprintf("extracted %d people, %d new records stored", len(people), stored)
	}

	log.Info("orchestrator.extract.ok",
		"people", len(people),
		"stored", stored,
		"chunks", out.Metadata.TotalChunks,
		"confidence", out.Metadata.Confidence,
		"elapsed_ms", out.ProcessingTime.Milliseconds(),
	)
	return out, nil
}

func (o *Orchestrator) resolveText(ctx context.Context, req ExtractRequest) (string, error) {
	if strings.TrimSpace(req.Text) != "" {
		return req.Text, nil
	}
	if len(req.File) == 0 {
		return "", common.ValidationErr("text or file is required")
	}

	kind := constants.MapExtToKind(filepath.Ext(req.FileName))
	if kind == constants.UNKNOWN {
		return "", common.ValidationErr(fmt.Sprintf("unsupported file type %q", filepath.Ext(req.FileName)))
	}
	if o.extractor == nil {
		return "", common.TextExtractionErr("no text extractor configured", nil)
	}

	res, err := o.extractor.Extract(ctx, req.File, kind)
	if err != nil {
		if errors.Is(err, common.ErrTextExtraction) {
			return "", err
		}
		return "", common.TextExtractionErr("no text extracted from "+req.FileName, err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", common.TextExtractionErr("no text extracted from "+req.FileName, nil)
	}
	o.logger.Debug("orchestrator.text_extracted", "file", req.FileName, "kind", kind, "method", res.Method, "chars", len(res.Text))
	return res.Text, nil
}

// resolveBatch returns the batch already issued for this content in scope,
// or registers a new one.
func (o *Orchestrator) resolveBatch(ctx context.Context, hash string, scope entity.Scope) (entity.Batch, error) {
	if b, ok, err := o.batches.Lookup(ctx, hash, scope); err != nil {
		return entity.Batch{}, err
	} else if ok {
		return b, nil
	}

	id, err := NewBatchID(hash, scope, nil)
	if err != nil {
		return entity.Batch{}, common.WrapError(err, "generate batch id")
	}
	return o.batches.Register(ctx, hash, scope, id)
}

func (o *Orchestrator) shortCircuit(ctx context.Context, log *slog.Logger, scope entity.Scope, batchID string, meta entity.ExtractionMeta, start time.Time) (entity.ExtractionResult, error) {
	recs, err := o.people.ListByBatch(ctx, scope, batchID)
	if err != nil {
		return entity.ExtractionResult{}, err
	}

	people := make([]entity.PersonRecord, len(recs))
	confSum := 0.0
	chunks := 1
	for i, r := range recs {
		people[i] = r.PersonRecord
		confSum += r.Confidence
		chunks = max(chunks, r.TotalChunks)
	}

	out := entity.ExtractionResult{
		Success: true,
		People:  people,
		Metadata: entity.ResultMetadata{
			TotalPeople:    len(people),
			ExtractionType: meta.ExtractionType,
			Source:         meta.Source,
			ProcessedAt:    o.now().UTC(),
			Confidence:     entity.ClampConfidence(confSum / float64(max(len(people), 1))),
			BatchID:        batchID,
			TotalChunks:    chunks,
			FromCache:      true,
		},
		Message:        fmt.Sprintf("batch already processed, returning %d stored people", len(people)),
		ProcessingTime: time.Since(start),
	}
	if len(people) == 0 {
		out.Metadata.Confidence = constants.ConfidenceFailed
		out.Message = "batch already processed, no people found"
	}
	log.Info("orchestrator.batch.short_circuit", "people", len(people), "elapsed_ms", out.ProcessingTime.Milliseconds())
	return out, nil
}

// persist stores one analysis increment after dedup and returns how many
// rows were written.
func (o *Orchestrator) persist(ctx context.Context, scope entity.Scope, batchID string, meta entity.ExtractionMeta, p llm.Partial) (int, error) {
	stamped := make([]entity.PersonRecord, len(p.People))
	for i, person := range p.People {
		person = stamp(person, batchID, meta)
		person.ChunkIndex = p.ChunkIndex
		person.TotalChunks = p.TotalChunks
		stamped[i] = person
	}

	keep, err := o.dedup.Filter(ctx, stamped, scope)
	if err != nil {
		return 0, common.PersistenceErr("dedup increment", err)
	}
	inserted, err := o.people.InsertRecords(ctx, scope, keep)
	if err != nil {
		return 0, err
	}
	o.logger.Debug("orchestrator.increment.stored",
		"batch_id", batchID,
		"chunk", p.ChunkIndex,
		"total_chunks", p.TotalChunks,
		"candidates", len(p.People),
		"kept", len(keep),
		"inserted", len(inserted),
	)
	return len(inserted), nil
}

// Batch returns the stored records of batchID in scope.
func (o *Orchestrator) Batch(ctx context.Context, scope entity.Scope, batchID string) ([]entity.ScopedPersonRecord, error) {
	if err := common.NewValidator().Field("batch_id", batchID, common.Required).Error(); err != nil {
		return nil, err
	}
	return o.people.ListByBatch(ctx, scope, batchID)
}

// Search pages through the records of scope.
func (o *Orchestrator) Search(ctx context.Context, scope entity.Scope, f entity.SearchFilter) (entity.SearchPage, error) {
	v := common.NewValidator().
		Field("limit", f.Limit, common.Range(0, 500)).
		Field("offset", f.Offset, common.Range(0, 1<<31-1)).
		Field("text", f.Text, common.MaxLengthRule(256))
	if f.Status != "" {
		switch constants.RecordStatus(f.Status) {
		case constants.RecordStatusPending, constants.RecordStatusProcessed, constants.RecordStatusFailed:
		default:
			return entity.SearchPage{}, common.ValidationErr(fmt.Sprintf("unknown status %q", f.Status))
		}
	}
	if err := v.Error(); err != nil {
		return entity.SearchPage{}, err
	}
	return o.people.Search(ctx, scope, f)
}

// DeleteBatch removes every record of batchID in scope and forgets the
// content mapping, so the same text would be analyzed afresh.
func (o *Orchestrator) DeleteBatch(ctx context.Context, scope entity.Scope, batchID string) (int, error) {
	if err := common.NewValidator().Field("batch_id", batchID, common.Required).Error(); err != nil {
		return 0, err
	}
	n, err := o.people.DeleteByBatch(ctx, scope, batchID)
	if err != nil {
		return 0, err
	}
	if err := o.batches.Forget(ctx, scope, batchID); err != nil {
		return n, err
	}
	o.logger.Info("orchestrator.batch.deleted", "scope", scope.Key(), "batch_id", batchID, "deleted", n)
	return n, nil
}

func normalizeMeta(m entity.ExtractionMeta) entity.ExtractionMeta {
	m.ExtractionType = strings.TrimSpace(m.ExtractionType)
	if m.ExtractionType == "" {
		m.ExtractionType = constants.DefaultExtractionType
	}
	m.Source = strings.TrimSpace(m.Source)
	if m.Source == "" {
		m.Source = constants.DefaultSource
	}
	m.Description = strings.TrimSpace(m.Description)
	return m
}

func stamp(p entity.PersonRecord, batchID string, meta entity.ExtractionMeta) entity.PersonRecord {
	p.BatchID = batchID
	p.Source = meta.Source
	p.ExtractionType = meta.ExtractionType
	p.Status = constants.RecordStatusProcessed
	p.TotalChunks = max(p.TotalChunks, 1)
	return p
}
