package coupons

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/pkg/db/models"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
)

type couponRepository interface {
	FindByStore(ctx context.Context, storeID uuid.UUID) (*models.Coupon, error)
}

// Service resolves the reward for a store.
type Service interface {
	ForStore(ctx context.Context, storeID uuid.UUID) (*CouponDTO, error)
}

type service struct {
	repo couponRepository
}

func NewService(repo couponRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &service{repo: repo}, nil
}

// ForStore returns NOT_FOUND "reward not found" when the store has no coupon configured.
func (s *service) ForStore(ctx context.Context, storeID uuid.UUID) (*CouponDTO, error) {
	coupon, err := s.repo.FindByStore(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reward not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return FromModel(coupon), nil
}
