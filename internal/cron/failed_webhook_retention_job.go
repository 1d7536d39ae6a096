package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/wabaledger/pkg/logger"
	"gorm.io/gorm"
)

const failedWebhookRetentionDays = 7

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type FailedWebhookRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository failedWebhookPurger
	Retention  int
}

type failedWebhookPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewFailedWebhookRetentionJob purges failed webhook logs older than the
// retention window (7 days unless configured).
func NewFailedWebhookRetentionJob(params FailedWebhookRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("failed webhook repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = failedWebhookRetentionDays
	}
	return &failedWebhookRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type failedWebhookRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      failedWebhookPurger
	retention int
	now       func() time.Time
}

func (j *failedWebhookRetentionJob) Name() string { return "failed-webhook-retention" }

func (j *failedWebhookRetentionJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed webhook retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "failed webhook retention complete")
	return nil
}
