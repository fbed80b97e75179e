package outbox

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
)

// CurrentVersion is the envelope version written by Emit when none is set.
const CurrentVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID  string          `json:"userId"`
	StoreID string          `json:"storeId,omitempty"`
	Role    enums.ActorRole `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
