package certifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/internal/coupons"
	"github.com/flagit/flagit-backend/internal/stores"
	"github.com/flagit/flagit-backend/pkg/db/models"
	"github.com/flagit/flagit-backend/pkg/enums"
	"github.com/flagit/flagit-backend/pkg/types"
)

// SubmitInput is a member's check-in coordinate.
type SubmitInput struct {
	Lat float64
	Lng float64
}

// CertificationDTO is the API view of a certification.
type CertificationDTO struct {
	ID        uuid.UUID                 `json:"certification_id"`
	MemberID  uuid.UUID                 `json:"member_id"`
	StoreID   uuid.UUID                 `json:"store_id"`
	Location  types.GeographyPoint      `json:"location"`
	Status    enums.CertificationStatus `json:"status"`
	CreatedAt time.Time                 `json:"created_at"`
}

func FromModel(m *models.Certification) *CertificationDTO {
	if m == nil {
		return nil
	}
	return &CertificationDTO{
		ID:        m.ID,
		MemberID:  m.MemberID,
		StoreID:   m.StoreID,
		Location:  m.Location,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}

// Transition names the store-level change a status check caused.
type Transition string

const (
	TransitionNone           Transition = "none"
	TransitionWindowOpened   Transition = "window_opened"
	TransitionBatchCompleted Transition = "batch_completed"
)

// StatusResult is returned by status checks. Pending results carry counts and the
// window view; completed results carry the coupon.
type StatusResult struct {
	Status          enums.CertificationStatus `json:"status"`
	CertificationID uuid.UUID                 `json:"certification_id"`
	Message         string                    `json:"message"`
	CurrentCount    *int                      `json:"current_count,omitempty"`
	RequiredCount   *int                      `json:"required_count,omitempty"`
	Window          *stores.WindowView        `json:"window,omitempty"`
	Coupon          *coupons.CouponDTO        `json:"coupon,omitempty"`

	Transition Transition `json:"-"`
	Completed  int        `json:"-"`
}
