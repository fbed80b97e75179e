package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

const defaultTicketRetention = time.Hour

type ticketPruner interface {
	Prune(cutoff time.Time) int
}

type CancellationRetentionJobParams struct {
	Logger    *logger.Logger
	Pruner    ticketPruner
	Retention time.Duration
}

// NewCancellationRetentionJob drops resolved cancellation tickets once they
// are older than the retention window.
func NewCancellationRetentionJob(params CancellationRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Pruner == nil {
		return nil, fmt.Errorf("ticket pruner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultTicketRetention
	}
	return &cancellationRetentionJob{
		logg:      params.Logger,
		pruner:    params.Pruner,
		retention: retention,
		now:       time.Now,
	}, nil
}

type cancellationRetentionJob struct {
	logg      *logger.Logger
	pruner    ticketPruner
	retention time.Duration
	now       func() time.Time
}

func (j *cancellationRetentionJob) Name() string { return "cancellation-ticket-retention" }

func (j *cancellationRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	removed := j.pruner.Prune(cutoff)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"tickets_removed": removed,
	}), "cancellation ticket retention complete")
	return nil
}
