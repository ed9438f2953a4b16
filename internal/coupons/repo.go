package coupons

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/internal/repo"
	"github.com/flagit/flagit-backend/pkg/db/models"
)

// Repository reads coupons. Provisioning happens outside this service.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create persists a coupon; used by seeding and tests.
func (r *Repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return repo.Insert(ctx, r.Base, "coupon", coupon)
}

// FindByStore returns the coupon attached to storeID.
func (r *Repository) FindByStore(ctx context.Context, storeID uuid.UUID) (*models.Coupon, error) {
	return repo.FindOne[models.Coupon](r.DB(ctx), "store_id = ?", storeID)
}
