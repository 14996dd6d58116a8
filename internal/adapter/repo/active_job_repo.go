package repo

import (
	"context"
	"fmt"
	"time"

	"genesis/internal/domain"
	"genesis/internal/infra"
	"genesis/internal/sqlinline"
)

// RunningJobIndex is the partial unique index guarding single-flight.
const RunningJobIndex = "active_jobs_one_running_per_user"

// ActiveJobRepositoryPG implements domain.ActiveJobRepository.
type ActiveJobRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewActiveJobRepository(sql infra.SQLExecutor) *ActiveJobRepositoryPG {
	return &ActiveJobRepositoryPG{sql: sql}
}

// Insert writes a running marker. A violation of RunningJobIndex becomes
// domain.ErrConcurrency.
func (r *ActiveJobRepositoryPG) Insert(ctx context.Context, m *domain.ActiveJobMarker) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertActiveJob, m.ID, m.UserID, string(m.JobType), m.StartedAt)
	if err != nil {
		if infra.IsUniqueViolation(err, RunningJobIndex) {
			return fmt.Errorf("%w: user %s", domain.ErrConcurrency, m.UserID)
		}
		return fmt.Errorf("insert active job: %w", err)
	}
	m.Status = domain.JobStatusRunning
	return nil
}

// Finish moves a running marker to a terminal status. It reports false when
// the marker was no longer running.
func (r *ActiveJobRepositoryPG) Finish(ctx context.Context, id string, status domain.JobStatus, at time.Time) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishActiveJob, id, string(status), at)
	if err != nil {
		return false, fmt.Errorf("finish active job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ActiveJobRepositoryPG) Delete(ctx context.Context, id string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteActiveJob, id); err != nil {
		return fmt.Errorf("delete active job: %w", err)
	}
	return nil
}

func (r *ActiveJobRepositoryPG) DeleteStaleForUser(ctx context.Context, userID string, startedBefore time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteStaleActiveJobsForUser, userID, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ActiveJobRepositoryPG) DeleteStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteStaleActiveJobs, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("sweep stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ActiveJobRepositoryPG) GetRunning(ctx context.Context, userID string) (*domain.ActiveJobMarker, error) {
	var (
		m               domain.ActiveJobMarker
		jobType, status string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectRunningActiveJob, userID).
		Scan(&m.ID, &m.UserID, &jobType, &status, &m.StartedAt, &m.CompletedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	m.JobType = domain.MediaKind(jobType)
	m.Status = domain.JobStatus(status)
	return &m, nil
}

var _ domain.ActiveJobRepository = (*ActiveJobRepositoryPG)(nil)
