package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPruneBatch      = 1000
	outboxMinAttempts      = 5
)

type outboxPruner interface {
	PruneSettled(ctx context.Context, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Repository  outboxPruner
	Retention   time.Duration
	MinAttempts int
	BatchSize   int
}

// NewOutboxRetentionJob prunes settled outbox rows. Terminal rows are kept
// until they used MinAttempts so operators can still inspect recent failures.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		batch:       params.BatchSize,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxPruner
	retention   time.Duration
	minAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return JobOutboxRetention }

// Run deletes in batches so no single statement holds locks on the whole
// table while the publisher is claiming rows.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.repo.PruneSettled(ctx, cutoff, j.minAttempts, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	}), "outbox retention cleanup complete")
	return nil
}
