package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

func TestOutboxRetentionJobUsesCutoffAndDefaults(t *testing.T) {
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newOutboxRetentionJob(t, repo, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.minAttempts != outboxMinAttempts {
		t.Fatalf("expected min attempts %d, got %d", outboxMinAttempts, repo.minAttempts)
	}
	if repo.calls != 1 {
		t.Fatalf("a short batch should stop the loop, got %d calls", repo.calls)
	}
}

func TestOutboxRetentionJobLoopsUntilShortBatch(t *testing.T) {
	repo := &fakeOutboxPruner{batches: []int64{10, 10, 3}}
	job := newOutboxRetentionJob(t, repo, 10)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.calls != 3 {
		t.Fatalf("expected 3 prune calls, got %d", repo.calls)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxPruner{err: errors.New("boom")}, 0)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Repository: &fakeOutboxPruner{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected repository error")
	}
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxPruner, batch int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
		BatchSize:  batch,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

type fakeOutboxPruner struct {
	cutoff      time.Time
	minAttempts int
	batches     []int64
	calls       int
	err         error
}

func (f *fakeOutboxPruner) PruneSettled(_ context.Context, cutoff time.Time, minAttemptCount, _ int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}
