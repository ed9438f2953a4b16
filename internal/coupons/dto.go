package coupons

import (
	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/pkg/db/models"
)

// CouponDTO is the reward block returned with a completed certification.
type CouponDTO struct {
	ID          uuid.UUID `json:"coupon_id"`
	Name        string    `json:"coupon_name"`
	Code        string    `json:"code"`
	QRCodeImage *string   `json:"qr_code_image"`
}

func FromModel(m *models.Coupon) *CouponDTO {
	if m == nil {
		return nil
	}
	return &CouponDTO{
		ID:          m.ID,
		Name:        m.Name,
		Code:        m.Code,
		QRCodeImage: m.QRCodeURL,
	}
}
