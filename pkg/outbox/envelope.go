package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TriggerRef names the status check that caused the event. Members in the
// batch other than the trigger never made a request.
type TriggerRef struct {
	CertificationID uuid.UUID `json:"certificationId"`
	MemberID        uuid.UUID `json:"memberId"`
	Strategy        string    `json:"strategy,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds. Data is decoded by the
// registry using the payload type registered for the row's event type.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Trigger    *TriggerRef     `json:"trigger,omitempty"`
	Data       json.RawMessage `json:"data"`
}
