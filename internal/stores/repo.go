package stores

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flagit/flagit-backend/internal/repo"
	"github.com/flagit/flagit-backend/pkg/db/models"
)

// Repository handles store persistence.
type Repository struct {
	repo.Base
}

// NewRepository binds a GORM DB to store operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create persists a new store row.
func (r *Repository) Create(ctx context.Context, store *models.Store) error {
	return repo.Insert(ctx, r.Base, "store", store)
}

// FindByID loads a store by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	return repo.FindOne[models.Store](r.DB(ctx), "id = ?", id)
}

// List returns every store ordered by name.
func (r *Repository) List(ctx context.Context) ([]models.Store, error) {
	var stores []models.Store
	if err := r.DB(ctx).Order("name ASC").Order("id ASC").Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}

// LockByIDWithTx loads a store with SELECT ... FOR UPDATE inside tx.
func (r *Repository) LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Store, error) {
	if err := repo.RequireTx(tx); err != nil {
		return nil, err
	}
	return repo.FindOne[models.Store](tx.Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

// SetWindowWithTx opens (startedAt != nil) or closes (nil) the store's success window.
func (r *Repository) SetWindowWithTx(tx *gorm.DB, id uuid.UUID, startedAt *time.Time) error {
	if err := repo.RequireTx(tx); err != nil {
		return err
	}
	var value any
	if startedAt != nil {
		value = startedAt.UTC()
	}
	res := tx.Model(&models.Store{}).
		Where("id = ?", id).
		Update("success_window_started_at", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
