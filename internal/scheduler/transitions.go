package scheduler

import (
	"time"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// SelectNext returns the first job, in the given order, that a tick may work on.
func SelectNext(jobs []entity.BackgroundJob) (entity.BackgroundJob, bool) {
	for _, j := range jobs {
		if j.Status.Eligible() && j.ProcessedChunks < j.TotalChunks {
			return j, true
		}
	}
	return entity.BackgroundJob{}, false
}

// MarkStarted moves job to processing; StartedAt is set only once.
func MarkStarted(job entity.BackgroundJob, now time.Time) entity.BackgroundJob {
	job.Status = constants.JobStatusProcessing
	if job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	return job
}

// MarkChunkDone records one processed chunk and completes the job after the
// last one.
func MarkChunkDone(job entity.BackgroundJob, peopleFound int, now time.Time) entity.BackgroundJob {
	job.ProcessedChunks = min(job.ProcessedChunks+1, job.TotalChunks)
	job.PeopleFound += peopleFound
	if job.ProcessedChunks == job.TotalChunks {
		t := now
		job.Status = constants.JobStatusCompleted
		job.CompletedAt = &t
	}
	return job
}

// MarkFailed ends job with cause. Failed jobs are never picked again.
func MarkFailed(job entity.BackgroundJob, cause error, now time.Time) entity.BackgroundJob {
	t := now
	job.Status = constants.JobStatusFailed
	job.CompletedAt = &t
	if cause != nil {
		job.ErrorMessage = cause.Error()
	}
	return job
}
