package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/dedup"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/llm"
)

type scriptedAnalyzer struct {
	mu       sync.Mutex
	requests []llm.AnalysisRequest
	failOn   int // 1-based call number that fails; 0 never
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, req llm.AnalysisRequest, _ llm.PartialSink) (llm.AnalysisResult, error) {
	return a.AnalyzeSingle(ctx, req)
}

func (a *scriptedAnalyzer) AnalyzeSingle(_ context.Context, req llm.AnalysisRequest) (llm.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.failOn == len(a.requests) {
		return llm.AnalysisResult{}, common.ProviderErr("analysis failed after 4 attempts", errors.New("status 500"))
	}
	name := strings.TrimSpace(req.Text)
	return llm.AnalysisResult{People: []entity.PersonRecord{{Name: name, Company: "Acme", Confidence: 0.9}}, Confidence: 0.9}, nil
}

// memCorpus is both the dedup lookup and the record writer.
type memCorpus struct {
	mu   sync.Mutex
	recs []entity.ScopedPersonRecord
}

func (c *memCorpus) FindMatch(_ context.Context, _ entity.Scope, m dedup.Match) (*entity.PersonRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.recs {
		if m.Matches(dedup.MatchOf(r.PersonRecord)) {
			p := r.PersonRecord
			return &p, nil
		}
	}
	return nil, nil
}

func (c *memCorpus) InsertRecords(_ context.Context, _ entity.Scope, recs []entity.ScopedPersonRecord) ([]entity.ScopedPersonRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, recs...)
	return recs, nil
}

func newTestScheduler(t *testing.T, a *scriptedAnalyzer) (*Scheduler, *memCorpus, string) {
	t.Helper()
	dir := t.TempDir()
	corpus := &memCorpus{}
	s := New(nil, a, nil, dedup.NewEngine(corpus, nil), corpus, Config{
		TickInterval: 10 * time.Millisecond,
		ChunkSize:    10,
		ScratchDir:   dir,
	}, nil)
	return s, corpus, dir
}

// 3 chunks of 10 bytes: "alice    \n", "bob      \n", "carol".
const threeChunks = "alice    \nbob      \ncarol"

func TestSubmitDoesNotProcess(t *testing.T) {
	// WHAT: Submit stores a pending job with its chunk count and returns at once.
	// WHY: Background submissions must not block on the provider.
	a := &scriptedAnalyzer{}
	s, _, dir := newTestScheduler(t, a)

	id, err := s.Submit(context.Background(), SubmitRequest{Text: threeChunks, FileName: "people.txt"})
	require.NoError(t, err)

	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.TotalChunks)
	assert.Zero(t, job.ProcessedChunks)
	assert.Nil(t, job.StartedAt)
	assert.Equal(t, filepath.Join(dir, id.String()+".txt"), job.SourcePath)
	assert.Equal(t, constants.DefaultExtractionType, job.ExtractionType)
	assert.FileExists(t, job.SourcePath)
	assert.Empty(t, a.requests)
}

func TestSubmitValidation(t *testing.T) {
	s, _, _ := newTestScheduler(t, &scriptedAnalyzer{})

	_, err := s.Submit(context.Background(), SubmitRequest{})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Submit(context.Background(), SubmitRequest{File: []byte("x"), FileName: "x.bin"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = s.Submit(context.Background(), SubmitRequest{File: []byte("x"), FileName: "x.pdf"})
	assert.ErrorIs(t, err, common.ErrTextExtraction)

	jobs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJobCompletesAfterExactlyTotalChunksTicks(t *testing.T) {
	// WHAT: A 3-chunk job completes after exactly 3 ticks, one chunk per tick.
	// WHY: Ticks pace provider traffic; progress must be monotonic and bounded.
	a := &scriptedAnalyzer{}
	s, corpus, dir := newTestScheduler(t, a)
	ctx := context.Background()

	id, err := s.Submit(ctx, SubmitRequest{Text: threeChunks})
	require.NoError(t, err)

	for tick := 1; tick <= 3; tick++ {
		job, err := s.ProcessOneTick(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, tick, job.ProcessedChunks)
		assert.LessOrEqual(t, job.ProcessedChunks, job.TotalChunks)
		require.NotNil(t, job.StartedAt)
		if tick < 3 {
			assert.Equal(t, constants.JobStatusProcessing, job.Status)
			assert.Nil(t, job.CompletedAt)
		}
	}

	job, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, 3, job.PeopleFound)

	noop, err := s.ProcessOneTick(ctx)
	require.NoError(t, err)
	assert.Nil(t, noop)

	require.Len(t, a.requests, 3)
	assert.Equal(t, "alice    \n", a.requests[0].Text)
	assert.Equal(t, 2, a.requests[2].ChunkIndex)
	assert.Equal(t, 3, a.requests[2].TotalChunks)

	require.Len(t, corpus.recs, 3)
	assert.Equal(t, "job-"+id.String(), corpus.recs[0].BatchID)
	assert.Empty(t, corpus.recs[0].UserID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "source and chunk scratch files are removed")
}

func TestChunkFailureFailsWholeJob(t *testing.T) {
	// WHAT: The first failing chunk marks the job failed and it is never picked again.
	// WHY: Background jobs do not skip failed chunks.
	a := &scriptedAnalyzer{failOn: 2}
	s, _, _ := newTestScheduler(t, a)
	ctx := context.Background()

	first, err := s.Submit(ctx, SubmitRequest{Text: threeChunks})
	require.NoError(t, err)
	second, err := s.Submit(ctx, SubmitRequest{Text: "dave"})
	require.NoError(t, err)

	_, err = s.ProcessOneTick(ctx)
	require.NoError(t, err)
	job, err := s.ProcessOneTick(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, first, job.ID)
	assert.Equal(t, constants.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.ProcessedChunks)
	assert.Contains(t, job.ErrorMessage, "status 500")
	assert.NotNil(t, job.CompletedAt)
	assert.NoFileExists(t, job.SourcePath)

	next, err := s.ProcessOneTick(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second, next.ID)
	assert.Equal(t, constants.JobStatusCompleted, next.Status)
}

func TestTicksServeJobsInCreationOrder(t *testing.T) {
	a := &scriptedAnalyzer{}
	s, _, _ := newTestScheduler(t, a)
	ctx := context.Background()

	first, err := s.Submit(ctx, SubmitRequest{Text: "ann\n      bo"})
	require.NoError(t, err)
	_, err = s.Submit(ctx, SubmitRequest{Text: "cy"})
	require.NoError(t, err)

	for range 2 {
		job, err := s.ProcessOneTick(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, job.ID)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	a := &scriptedAnalyzer{}
	s, _, _ := newTestScheduler(t, a)
	ctx, cancel := context.WithCancel(context.Background())

	id, err := s.Submit(ctx, SubmitRequest{Text: threeChunks})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		job, err := s.Get(context.Background(), id)
		return err == nil && job.Status == constants.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestReadChunkDropsSplitRunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(path, []byte("abé"), 0o600)) // é is 2 bytes

	head, err := readChunk(path, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "ab", head)

	tail, err := readChunk(path, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, "", tail)

	_, err = readChunk(filepath.Join(t.TempDir(), "missing"), 0, 3)
	assert.Error(t, err)
}

func TestTransitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	later := now.Add(time.Minute)
	job := entity.BackgroundJob{ID: uuid.New(), Status: constants.JobStatusPending, TotalChunks: 2}

	got, ok := SelectNext([]entity.BackgroundJob{
		{Status: constants.JobStatusCompleted, TotalChunks: 1, ProcessedChunks: 1},
		{Status: constants.JobStatusFailed, TotalChunks: 3},
		job,
	})
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)

	_, ok = SelectNext(nil)
	assert.False(t, ok)

	job = MarkStarted(job, now)
	job = MarkStarted(job, later)
	assert.Equal(t, constants.JobStatusProcessing, job.Status)
	assert.Equal(t, now, *job.StartedAt)

	job = MarkChunkDone(job, 2, later)
	assert.Equal(t, 1, job.ProcessedChunks)
	assert.Nil(t, job.CompletedAt)
	job = MarkChunkDone(job, 1, later)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.PeopleFound)
	job = MarkChunkDone(job, 0, later)
	assert.Equal(t, 2, job.ProcessedChunks)

	failed := MarkFailed(entity.BackgroundJob{Status: constants.JobStatusProcessing}, errors.New("boom"), later)
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.ErrorMessage)
	assert.True(t, failed.Status.Terminal())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a := entity.BackgroundJob{ID: uuid.New(), Status: constants.JobStatusPending}
	b := entity.BackgroundJob{ID: uuid.New(), Status: constants.JobStatusPending}
	require.NoError(t, m.Create(ctx, a))
	require.NoError(t, m.Create(ctx, b))
	assert.Error(t, m.Create(ctx, a))

	a.Status = constants.JobStatusProcessing
	require.NoError(t, m.Update(ctx, a))

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, constants.JobStatusProcessing, list[0].Status)

	_, err = m.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, m.Update(ctx, entity.BackgroundJob{ID: uuid.New()}), common.ErrNotFound)
}
