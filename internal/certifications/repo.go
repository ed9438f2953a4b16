package certifications

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/internal/repo"
	"github.com/flagit/flagit-backend/pkg/db/models"
	"github.com/flagit/flagit-backend/pkg/enums"
	"github.com/flagit/flagit-backend/pkg/geo"
	"github.com/flagit/flagit-backend/pkg/pagination"
	"github.com/flagit/flagit-backend/pkg/types"
)

// Repository handles certification persistence and the proximity query.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create persists a new certification.
func (r *Repository) Create(ctx context.Context, cert *models.Certification) error {
	return repo.Insert(ctx, r.Base, "certification", cert)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Certification, error) {
	return repo.FindOne[models.Certification](r.DB(ctx), "id = ?", id)
}

// FindByIDForMember only matches certifications owned by memberID.
func (r *Repository) FindByIDForMember(ctx context.Context, id, memberID uuid.UUID) (*models.Certification, error) {
	return repo.FindOne[models.Certification](r.DB(ctx), "id = ? AND member_id = ?", id, memberID)
}

// NearbyPendingWithTx returns the store's pending certifications within radiusMeters of anchor.
// A bounding box narrows rows in SQL; the exact great-circle test runs in Go.
func (r *Repository) NearbyPendingWithTx(tx *gorm.DB, storeID uuid.UUID, anchor types.GeographyPoint, radiusMeters float64) ([]models.Certification, error) {
	if err := repo.RequireTx(tx); err != nil {
		return nil, err
	}
	box := geo.BoundingBox(anchor, radiusMeters)

	var candidates []models.Certification
	if err := tx.
		Where("store_id = ? AND status = ?", storeID, enums.CertificationStatusPending).
		Where("lat BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("lng BETWEEN ? AND ?", box.MinLng, box.MaxLng).
		Order("created_at ASC").
		Order("id ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	nearby := candidates[:0]
	for _, cert := range candidates {
		if geo.WithinRadius(anchor, cert.Location, radiusMeters) {
			nearby = append(nearby, cert)
		}
	}
	return nearby, nil
}

// CompleteWithTx flips the given certifications from pending to completed in one statement.
// Rows that are no longer pending are left untouched.
func (r *Repository) CompleteWithTx(tx *gorm.DB, ids []uuid.UUID) (int64, error) {
	if err := repo.RequireTx(tx); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.Model(&models.Certification{}).
		Where("id IN ?", ids).
		Where("status = ?", enums.CertificationStatusPending).
		Update("status", enums.CertificationStatusCompleted)
	return res.RowsAffected, res.Error
}

// StatusWithTx re-reads a certification's status inside tx.
func (r *Repository) StatusWithTx(tx *gorm.DB, id uuid.UUID) (enums.CertificationStatus, error) {
	if err := repo.RequireTx(tx); err != nil {
		return "", err
	}
	cert, err := repo.FindOne[models.Certification](tx.Select("id", "status"), "id = ?", id)
	if err != nil {
		return "", err
	}
	return cert.Status, nil
}

// CountByStatus counts a store's certifications in the given status.
func (r *Repository) CountByStatus(ctx context.Context, storeID uuid.UUID, status enums.CertificationStatus) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Certification{}).
		Where("store_id = ? AND status = ?", storeID, status).
		Count(&count).Error
	return count, err
}

// ListByMember pages a member's certifications newest first. cursor is the last row
// of the previous page.
func (r *Repository) ListByMember(ctx context.Context, memberID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Certification, error) {
	query := r.DB(ctx).Model(&models.Certification{}).Where("member_id = ?", memberID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Certification
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
