package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/pkg/types"
)

const (
	DefaultRequiredCount        = 10
	DefaultSuccessWindowSeconds = 5
)

// Store is a partner location that members check in around.
// SuccessWindowStartedAt is non-nil only while a grace window is open.
type Store struct {
	ID                     uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name                   string               `gorm:"column:name;not null"`
	Location               types.GeographyPoint `gorm:"embedded"`
	RequiredCount          int                  `gorm:"column:required_count;not null;default:10"`
	SuccessWindowStartedAt *time.Time           `gorm:"column:success_window_started_at"`
	SuccessWindowSeconds   int                  `gorm:"column:success_window_seconds;not null;default:5"`
	CreatedAt              time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns an id so inserts do not depend on a database default.
func (s *Store) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
