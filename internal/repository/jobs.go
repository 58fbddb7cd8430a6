package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// JobRepository keeps background job state in the database so it survives
// restarts.
type JobRepository interface {
	Create(ctx context.Context, job entity.BackgroundJob) error
	Get(ctx context.Context, id uuid.UUID) (entity.BackgroundJob, error)
	List(ctx context.Context) ([]entity.BackgroundJob, error)
	Update(ctx context.Context, job entity.BackgroundJob) error
}

type jobRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewJobRepository(db *DB, logger *slog.Logger) JobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobRepository{db: db, logger: logger}
}

var jobColumns = []string{
	"id", "source_path", "file_name", "extraction_type", "source", "description",
	"status", "total_chunks", "processed_chunks", "people_found", "error_message",
	"created_at", "started_at", "completed_at",
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (r *jobRepository) Create(ctx context.Context, job entity.BackgroundJob) error {
	query, args := r.db.builder().Insert(tableJobs).
		Columns(jobColumns...).
		Values(
			job.ID, job.SourcePath, job.FileName, job.ExtractionType, job.Source, job.Description,
			string(job.Status), job.TotalChunks, job.ProcessedChunks, job.PeopleFound, job.ErrorMessage,
			job.CreatedAt.UTC(), nullTime(job.StartedAt), nullTime(job.CompletedAt),
		).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("background_job create failed", "job_id", job.ID, "err", err)
		return common.PersistenceErr("create job", err)
	}
	r.logger.Info("background_job created", "job_id", job.ID, "total_chunks", job.TotalChunks)
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (entity.BackgroundJob, error) {
	query, args := r.db.builder().Select(jobColumns...).
		From(r.db.builder().Table(tableJobs)).
		Where(entsql.EQ("id", id)).
		Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return entity.BackgroundJob{}, err
	}
	if len(jobs) == 0 {
		return entity.BackgroundJob{}, common.NotFoundErr("job " + id.String())
	}
	return jobs[0], nil
}

func (r *jobRepository) List(ctx context.Context) ([]entity.BackgroundJob, error) {
	query, args := r.db.builder().Select(jobColumns...).
		From(r.db.builder().Table(tableJobs)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id")).
		Query()
	return r.query(ctx, query, args)
}

func (r *jobRepository) Update(ctx context.Context, job entity.BackgroundJob) error {
	query, args := r.db.builder().Update(tableJobs).
		Set("status", string(job.Status)).
		Set("processed_chunks", job.ProcessedChunks).
		Set("people_found", job.PeopleFound).
		Set("error_message", job.ErrorMessage).
		Set("started_at", nullTime(job.StartedAt)).
		Set("completed_at", nullTime(job.CompletedAt)).
		Where(entsql.EQ("id", job.ID)).
		Query()
	res, err := r.db.SQL().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("background_job update failed", "job_id", job.ID, "err", err)
		return common.PersistenceErr("update job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NotFoundErr("job " + job.ID.String())
	}
	return nil
}

func (r *jobRepository) query(ctx context.Context, query string, args []any) ([]entity.BackgroundJob, error) {
	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.PersistenceErr("query jobs", err)
	}
	defer rows.Close()

	var out []entity.BackgroundJob
	for rows.Next() {
		var (
			j                           entity.BackgroundJob
			status                      string
			created, started, completed dbTime
		)
		if err := rows.Scan(
			&j.ID, &j.SourcePath, &j.FileName, &j.ExtractionType, &j.Source, &j.Description,
			&status, &j.TotalChunks, &j.ProcessedChunks, &j.PeopleFound, &j.ErrorMessage,
			&created, &started, &completed,
		); err != nil {
			return nil, common.PersistenceErr("scan job", err)
		}
		j.Status = constants.JobStatus(status)
		j.CreatedAt = created.Time
		j.StartedAt = started.ptr()
		j.CompletedAt = completed.ptr()
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, common.PersistenceErr("iterate jobs", err)
	}
	return out, nil
}
