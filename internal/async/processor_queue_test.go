package async

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/core"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

type fakeExtractor struct {
	mu    sync.Mutex
	reqs  []core.ExtractRequest
	block chan struct{}
	err   error
}

func (f *fakeExtractor) Extract(_ context.Context, req core.ExtractRequest) (entity.ExtractionResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return entity.ExtractionResult{}, f.err
	}
	return entity.ExtractionResult{
		Success:  true,
		Metadata: entity.ResultMetadata{BatchID: "b-" + req.FileName, TotalPeople: 1},
	}, nil
}

type collector struct {
	mu  sync.Mutex
	out []Outcome
}

func (c *collector) add(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, o)
}

func (c *collector) all() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outcome(nil), c.out...)
}

func TestProcessorQueueRunsJobs(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("Jane Doe "+name), 0o600))
		paths = append(paths, p)
	}

	ex := &fakeExtractor{}
	col := &collector{}
	q := NewProcessorQueue(ex, nil, WithWorkers(2), WithQueueSize(1), WithResultHandler(col.add))

	scope := entity.UserScope("u-1")
	for _, p := range paths {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p, Scope: scope, Meta: entity.ExtractionMeta{Source: "dir"}}))
	}
	q.Shutdown(context.Background())

	outs := col.all()
	require.Len(t, outs, 3)
	for _, o := range outs {
		require.NoError(t, o.Err)
		assert.Equal(t, "b-"+filepath.Base(o.Job.Path), o.Result.Metadata.BatchID)
		assert.False(t, o.Job.SubmittedAt.IsZero())
	}
	require.Len(t, ex.reqs, 3)
	for _, r := range ex.reqs {
		assert.Equal(t, scope, r.Scope)
		assert.Equal(t, "dir", r.Meta.Source)
		assert.Equal(t, "Jane Doe "+r.FileName, string(r.File))
	}
}

func TestProcessorQueueReportsFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("x"), 0o600))

	ex := &fakeExtractor{err: common.ProviderErr("analysis failed after 4 attempts", common.ErrAIProvider)}
	col := &collector{}
	q := NewProcessorQueue(ex, nil, WithWorkers(1), WithResultHandler(col.add))

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: good}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: filepath.Join(dir, "missing.txt")}))
	q.Shutdown(context.Background())

	outs := col.all()
	require.Len(t, outs, 2)
	assert.ErrorIs(t, outs[0].Err, common.ErrAIProvider)
	assert.ErrorIs(t, outs[1].Err, common.ErrTextExtraction)
	assert.Len(t, ex.reqs, 1)
}

func TestProcessorQueueBackpressureAndShutdown(t *testing.T) {
	dir := t.TempDir()
	path := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o600))
		return p
	}
	ex := &fakeExtractor{block: make(chan struct{})}
	q := NewProcessorQueue(ex, nil, WithWorkers(1), WithQueueSize(1))

	// worker holds the first job, the buffer holds the second
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: path("1.txt")}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: path("2.txt")}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{Path: path("3.txt")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(ex.block)
	q.Shutdown(context.Background())
	assert.Len(t, ex.reqs, 2)
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{Path: "late.txt"}), ErrQueueClosed)

	// a second Shutdown is a no-op
	q.Shutdown(context.Background())
}
