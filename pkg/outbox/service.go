package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

// DomainEvent is a state change to queue alongside the write that caused it.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service queues cancellation events in outbox_events for the relay.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit inserts event inside tx, so it only exists if the state change commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	row, envelope, err := buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue outbox event")
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists queues event unless the aggregate already carries one of the
// same type. A unique violation from a concurrent writer counts as present.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit requires a transaction")
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check outbox event")
	}
	if exists {
		return nil
	}
	err = s.Emit(ctx, tx, event)
	if pkgerrors.IsUniqueViolation(err) {
		return nil
	}
	return err
}

func buildRow(event DomainEvent) (*models.OutboxEvent, PayloadEnvelope, error) {
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return nil, PayloadEnvelope{}, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown outbox event %s/%s", event.EventType, event.AggregateType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, PayloadEnvelope{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode outbox payload")
	}

	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version == 0 {
		envelope.Version = CurrentVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return nil, PayloadEnvelope{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode outbox envelope")
	}

	return &models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(encoded),
	}, envelope, nil
}
