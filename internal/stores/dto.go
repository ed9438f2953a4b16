package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/pkg/db/models"
	"github.com/flagit/flagit-backend/pkg/types"
)

// StoreDTO exposes partner store data in API responses.
type StoreDTO struct {
	ID                   uuid.UUID            `json:"id"`
	Name                 string               `json:"name"`
	Location             types.GeographyPoint `json:"location"`
	RequiredCount        int                  `json:"required_count"`
	SuccessWindowSeconds int                  `json:"success_window_seconds"`
	Window               WindowView           `json:"window"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// NearbyStoreDTO is a store annotated with its distance from the caller.
type NearbyStoreDTO struct {
	StoreDTO
	DistanceMeters float64 `json:"distance"`
}

// FromModel maps the persisted store into a DTO.
func FromModel(m *models.Store, now time.Time) *StoreDTO {
	if m == nil {
		return nil
	}
	return &StoreDTO{
		ID:                   m.ID,
		Name:                 m.Name,
		Location:             m.Location,
		RequiredCount:        m.RequiredCount,
		SuccessWindowSeconds: m.SuccessWindowSeconds,
		Window:               WindowOf(m).View(now),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
