package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// ErrQueueClosed is returned by Enqueue after Shutdown started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one file waiting for synchronous extraction.
type Job struct {
	Path        string
	HashHex     string
	Meta        entity.ExtractionMeta
	Scope       entity.Scope
	SubmittedAt time.Time
	TraceID     string
}

// Outcome is what a worker produced for one Job.
type Outcome struct {
	Job    Job
	Result entity.ExtractionResult
	Err    error
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
