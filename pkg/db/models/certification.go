package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/pkg/enums"
	"github.com/flagit/flagit-backend/pkg/types"
)

// Certification is a single member check-in attempt near a store.
type Certification struct {
	ID        uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	MemberID  uuid.UUID                 `gorm:"column:member_id;type:uuid;not null"`
	StoreID   uuid.UUID                 `gorm:"column:store_id;type:uuid;not null;index:idx_certifications_store_status_location,priority:1"`
	Location  types.GeographyPoint      `gorm:"embedded"`
	Status    enums.CertificationStatus `gorm:"column:status;not null;default:'pending';index:idx_certifications_store_status_location,priority:2"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Certification) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = enums.CertificationStatusPending
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid certification status %q", c.Status)
	}
	return nil
}
