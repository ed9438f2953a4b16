package payloads

import (
	"time"

	"github.com/google/uuid"
)

// CertificationsCompletedEvent is emitted once per batch completion at a store.
// Badge and notice services consume it.
type CertificationsCompletedEvent struct {
	StoreID          uuid.UUID   `json:"store_id"`
	CertificationIDs []uuid.UUID `json:"certification_ids"`
	MemberIDs        []uuid.UUID `json:"member_ids"`
	Strategy         string      `json:"strategy"`
	CompletedAt      time.Time   `json:"completed_at"`
}
