package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// JobStore holds background job state. List returns jobs in creation order.
type JobStore interface {
	Create(ctx context.Context, job entity.BackgroundJob) error
	Get(ctx context.Context, id uuid.UUID) (entity.BackgroundJob, error)
	List(ctx context.Context) ([]entity.BackgroundJob, error)
	Update(ctx context.Context, job entity.BackgroundJob) error
}

// MemoryStore is a process-local JobStore; its contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]entity.BackgroundJob
	order []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]entity.BackgroundJob)}
}

func (m *MemoryStore) Create(_ context.Context, job entity.BackgroundJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return common.NewAppError(common.CodeValidation, "job "+job.ID.String()+" already exists", common.ErrInvalidInput)
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (entity.BackgroundJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return entity.BackgroundJob{}, common.NotFoundErr("job " + id.String())
	}
	return job, nil
}

func (m *MemoryStore) List(_ context.Context) ([]entity.BackgroundJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.BackgroundJob, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id])
	}
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, job entity.BackgroundJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return common.NotFoundErr("job " + job.ID.String())
	}
	m.jobs[job.ID] = job
	return nil
}
