package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/wabaledger/pkg/logger"
	"gorm.io/gorm"
)

func TestFailedWebhookRetentionJobUsesSevenDayCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	repo := &fakeFailedWebhookRepo{deletedRows: 12}
	job := newFailedWebhookRetentionJob(t, repo, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedCutoff := now.Add(-7 * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
	if job.Name() != "failed-webhook-retention" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestFailedWebhookRetentionJobHonoursConfiguredDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	repo := &fakeFailedWebhookRepo{}
	job := newFailedWebhookRetentionJob(t, repo, 2)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.lastCutoff.Equal(now.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", repo.lastCutoff)
	}
}

func TestFailedWebhookRetentionJobPropagatesErrors(t *testing.T) {
	job := newFailedWebhookRetentionJob(t, &fakeFailedWebhookRepo{err: errors.New("boom")}, 0)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFailedWebhookRetentionJobStopsOnCanceledContext(t *testing.T) {
	repo := &fakeFailedWebhookRepo{}
	job := newFailedWebhookRetentionJob(t, repo, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if repo.called != 0 {
		t.Fatalf("repo should not be called after cancellation")
	}
}

func TestNewFailedWebhookRetentionJobValidatesParams(t *testing.T) {
	if _, err := NewFailedWebhookRetentionJob(FailedWebhookRetentionJobParams{}); err == nil {
		t.Fatal("expected error without logger")
	}
}

func newFailedWebhookRetentionJob(t *testing.T, repo *fakeFailedWebhookRepo, days int) *failedWebhookRetentionJob {
	t.Helper()
	jobIface, err := NewFailedWebhookRetentionJob(FailedWebhookRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         fakeTxRunner{},
		Repository: repo,
		Retention:  days,
	})
	if err != nil {
		t.Fatalf("NewFailedWebhookRetentionJob: %v", err)
	}
	job, ok := jobIface.(*failedWebhookRetentionJob)
	if !ok {
		t.Fatalf("expected failedWebhookRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeFailedWebhookRepo struct {
	lastCutoff  time.Time
	deletedRows int64
	err         error
	called      int
}

func (f *fakeFailedWebhookRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.deletedRows, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
