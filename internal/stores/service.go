package stores

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/pkg/db/models"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/geo"
	"github.com/flagit/flagit-backend/pkg/types"
)

type storeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	List(ctx context.Context) ([]models.Store, error)
}

// Service exposes read-only store operations.
type Service interface {
	GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error)
	ListNearby(ctx context.Context, origin types.GeographyPoint, limit int) ([]NearbyStoreDTO, error)
}

type service struct {
	repo     storeRepository
	maxLimit int
	now      func() time.Time
}

// NewService builds a store service with the provided repository.
func NewService(repo storeRepository, maxLimit int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &service{repo: repo, maxLimit: maxLimit, now: time.Now}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error) {
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return FromModel(store, s.now()), nil
}

func (s *service) ListNearby(ctx context.Context, origin types.GeographyPoint, limit int) ([]NearbyStoreDTO, error) {
	if err := origin.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates")
	}
	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}

	now := s.now()
	out := make([]NearbyStoreDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NearbyStoreDTO{
			StoreDTO:       *FromModel(&rows[i], now),
			DistanceMeters: geo.RoundMeters(geo.Distance(origin, rows[i].Location)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceMeters < out[j].DistanceMeters
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
