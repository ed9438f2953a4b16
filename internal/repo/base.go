// Package repo holds the persistence helpers shared by the store,
// certification and coupon repositories.
package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Base is embedded by each domain repository.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns the bare connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// RequireTx guards the *WithTx methods, which must run inside the caller's
// transaction so their row locks are held until commit.
func RequireTx(tx *gorm.DB) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return nil
}

// Insert persists row. kind names the row in the error returned for a nil row.
func Insert[T any](ctx context.Context, b Base, kind string, row *T) error {
	if row == nil {
		return fmt.Errorf("%s is required", kind)
	}
	return b.DB(ctx).Create(row).Error
}

// FindOne loads the first row matching query. Missing rows surface as
// gorm.ErrRecordNotFound.
func FindOne[T any](db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	if err := db.Where(query, args...).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
