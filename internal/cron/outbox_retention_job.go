package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

const (
	defaultOutboxRetention    = 30 * 24 * time.Hour
	defaultOutboxAttemptLimit = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox cleanup. AttemptLimit should
// match the relay's MaxAttempts so abandoned rows are collected too.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Repository   outboxRetentionRepo
	Retention    time.Duration
	AttemptLimit int
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	retention    time.Duration
	attemptLimit int
	now          func() time.Time
}

// NewOutboxRetentionJob drops cancellation events once they were relayed, or
// given up on, longer ago than the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		retention:    params.Retention,
		attemptLimit: params.AttemptLimit,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.attemptLimit <= 0 {
		job.attemptLimit = defaultOutboxAttemptLimit
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var removed int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		removed, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.attemptLimit)
		return err
	}); err != nil {
		return fmt.Errorf("purge outbox events before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if removed > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":        cutoff,
			"attempt_limit": j.attemptLimit,
			"removed":       removed,
		}), "outbox events purged")
	}
	return nil
}
