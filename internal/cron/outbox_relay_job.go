package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox/registry"
)

const (
	defaultRelayBatchSize   = 100
	defaultRelayMaxAttempts = 10
)

type outboxRelayRepo interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	Abandon(ctx context.Context, id uuid.UUID, cause error, maxAttempts int) error
}

type eventResolver interface {
	Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

type OutboxRelayJobParams struct {
	Logger      *logger.Logger
	Repository  outboxRelayRepo
	Registry    eventResolver
	Publisher   channelPublisher
	BatchSize   int
	MaxAttempts int
}

// RelayMessage is what subscribers receive on the events channel.
type RelayMessage struct {
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   uuid.UUID                 `json:"aggregate_id"`
	Envelope      outbox.PayloadEnvelope    `json:"envelope"`
}

// MarshalBinary lets both the Redis and the Pub/Sub transports encode the message as JSON.
func (m RelayMessage) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// Attributes are the routing metadata attached to Pub/Sub messages.
func (m RelayMessage) Attributes() map[string]string {
	return map[string]string{
		"event_id":       m.Envelope.EventID,
		"event_type":     string(m.EventType),
		"aggregate_type": string(m.AggregateType),
		"aggregate_id":   m.AggregateID.String(),
		"occurred_at":    m.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// NewOutboxRelayJob publishes queued cancellation events on the configured transport.
func NewOutboxRelayJob(params OutboxRelayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("publisher required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = defaultRelayBatchSize
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = defaultRelayMaxAttempts
	}
	return &outboxRelayJob{
		logg:        params.Logger,
		repo:        params.Repository,
		registry:    params.Registry,
		publisher:   params.Publisher,
		batchSize:   params.BatchSize,
		maxAttempts: params.MaxAttempts,
		now:         time.Now,
	}, nil
}

type outboxRelayJob struct {
	logg        *logger.Logger
	repo        outboxRelayRepo
	registry    eventResolver
	publisher   channelPublisher
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRelayJob) Name() string { return "outbox-relay" }

func (j *outboxRelayJob) Run(ctx context.Context) error {
	rows, err := j.repo.FetchUnpublished(ctx, j.batchSize, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("fetch unpublished: %w", err)
	}

	var (
		errs      error
		published int
	)
	for _, row := range rows {
		if err := j.relay(ctx, row); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", row.ID, err))
			continue
		}
		published++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"fetched":   len(rows),
		"published": published,
	}), "outbox relay complete")
	return errs
}

func (j *outboxRelayJob) relay(ctx context.Context, row models.OutboxEvent) error {
	resolved, err := j.registry.Resolve(row)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			if markErr := j.repo.Abandon(ctx, row.ID, err, j.maxAttempts); markErr != nil {
				return multierr.Append(err, markErr)
			}
		}
		return err
	}

	message := RelayMessage{
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Envelope:      resolved.Envelope,
	}
	if _, err := j.publisher.Publish(ctx, resolved.Descriptor.Channel, message); err != nil {
		if markErr := j.repo.MarkFailed(ctx, row.ID, err); markErr != nil {
			return multierr.Append(err, markErr)
		}
		return err
	}
	return j.repo.MarkPublished(ctx, row.ID, j.now().UTC())
}
