package db

import (
	"context"
	"time"

	"puppyday/internal/types"
)

// JobLockRepository implements a datastore-backed mutual exclusion for
// scheduled jobs. Each lock is a row in job_locks keyed by job name with an
// expiry; a crashed holder's lock is reclaimable after the TTL passes, so a
// wedged worker can never block the job forever.
type JobLockRepository struct {
	db DBTX
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection.
func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// TryAcquire attempts to take the lock for a job. Returns true when this
// caller now holds the lock. A live lock held by another owner causes a false
// return; an expired lock is stolen in the same statement.
func (r *JobLockRepository) TryAcquire(ctx context.Context, job types.JobName, owner string, ttl time.Duration) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (job_name, owner, expires_at)
		 VALUES ($1, $2, NOW() + $3)
		 ON CONFLICT (job_name) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at
		 WHERE job_locks.expires_at < NOW()`,
		string(job),
		owner,
		ttl,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release frees the lock if this owner still holds it. Releasing a lock that
// was already stolen (TTL expiry plus reacquisition) is a harmless no-op.
func (r *JobLockRepository) Release(ctx context.Context, job types.JobName, owner string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE job_name = $1 AND owner = $2`,
		string(job),
		owner,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return nil
}
