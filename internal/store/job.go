package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/idgen"
	"github.com/flowmine/engine/internal/apierr"
)

// jobIDGen generates job ids as a prefixed, time-sortable UUIDv7 so a job
// id is visually distinct from the entity UUIDs (store.UUID) it reports
// progress for.
var jobIDGen = idgen.Prefixed("job_", idgen.UUIDv7())

// JobKind distinguishes the two asynchronous job families that share this
// table: LLM enrichment tasks (internal/enrich) and orchestrator analysis
// runs (internal/orchestrator), unified so GET /jobs/{job_id} has one shape.
type JobKind string

const (
	JobKindEnrichment JobKind = "enrichment"
	JobKindAnalysis   JobKind = "analysis"
)

// JobStatus is the job's lifecycle state, per spec.md §6's
// {state: queued|running|done|failed, progress, error?, result_ref?}.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a tracked unit of asynchronous work.
type Job struct {
	ID        string
	Kind      JobKind
	Status    JobStatus
	Progress  float64
	Error     string
	ResultRef string
	CreatedAt string
	UpdatedAt string
}

// CreateJob inserts a new queued job.
func (s *Store) CreateJob(ctx context.Context, kind JobKind) (*Job, error) {
	var result *Job
	err := s.withWriteLock(func() error {
		now := nowRFC3339()
		j := Job{
			ID:        jobIDGen(),
			Kind:      kind,
			Status:    JobQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err := dbopen.Exec(ctx, s.db, `
			INSERT INTO jobs (id, kind, status, progress, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, j.ID, string(j.Kind), string(j.Status), j.Progress, j.CreatedAt, j.UpdatedAt)
		if err != nil {
			return err
		}
		result = &j
		return nil
	})
	return result, err
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+`FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFoundf("job %s not found", id)
	}
	return j, err
}

const jobSelectColumns = `
	SELECT id, kind, status, progress, error, result_ref, created_at, updated_at
`

// ListJobs lists jobs, optionally filtered by kind, most recent first.
func (s *Store) ListJobs(ctx context.Context, kind JobKind, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	q := jobSelectColumns + `FROM jobs`
	args := []any{}
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// MarkJobRunning transitions a queued job to running.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, JobRunning, 0, "", "")
}

// SetJobProgress updates a running job's fractional progress in [0,1].
func (s *Store) SetJobProgress(ctx context.Context, id string, progress float64) error {
	return s.withWriteLock(func() error {
		res, err := dbopen.Exec(ctx, s.db, `
			UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
		`, progress, nowRFC3339(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("job %s not found", id)
		}
		return nil
	})
}

// MarkJobDone transitions a job to done with a result reference.
func (s *Store) MarkJobDone(ctx context.Context, id, resultRef string) error {
	return s.setJobStatus(ctx, id, JobDone, 1, "", resultRef)
}

// MarkJobFailed transitions a job to failed with an error message.
func (s *Store) MarkJobFailed(ctx context.Context, id, errMsg string) error {
	return s.setJobStatus(ctx, id, JobFailed, 0, errMsg, "")
}

func (s *Store) setJobStatus(ctx context.Context, id string, status JobStatus, progress float64, errMsg, resultRef string) error {
	return s.withWriteLock(func() error {
		var res sql.Result
		var err error
		switch status {
		case JobRunning:
			res, err = dbopen.Exec(ctx, s.db, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, string(status), nowRFC3339(), id)
		case JobDone:
			res, err = dbopen.Exec(ctx, s.db, `UPDATE jobs SET status = ?, progress = ?, result_ref = ?, updated_at = ? WHERE id = ?`,
				string(status), progress, resultRef, nowRFC3339(), id)
		case JobFailed:
			res, err = dbopen.Exec(ctx, s.db, `UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
				string(status), errMsg, nowRFC3339(), id)
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.NotFoundf("job %s not found", id)
		}
		return nil
	})
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var kind, status string
	var errMsg, resultRef sql.NullString
	if err := row.Scan(&j.ID, &kind, &status, &j.Progress, &errMsg, &resultRef, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = JobKind(kind)
	j.Status = JobStatus(status)
	j.Error = errMsg.String
	j.ResultRef = resultRef.String
	return &j, nil
}
