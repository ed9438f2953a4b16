package certifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/flagit/flagit-backend/pkg/db/models"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/pagination"
)

func TestHistoryPagesNewestFirst(t *testing.T) {
	f := newFixture(t, "windowed")
	store := f.seedStore(t, 3, false)
	member := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		cert := &models.Certification{
			MemberID:  member,
			StoreID:   store.ID,
			Location:  storeAnchor,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.certs.Create(context.Background(), cert))
		ids[i] = cert.ID
	}
	other := &models.Certification{MemberID: uuid.New(), StoreID: store.ID, Location: storeAnchor}
	require.NoError(t, f.certs.Create(context.Background(), other))

	var seen []uuid.UUID
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.History(context.Background(), member, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		pages++
		for _, cert := range page.Certifications {
			require.Equal(t, member, cert.MemberID)
			seen = append(seen, cert.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		require.Less(t, pages, 5, "pagination did not terminate")
	}

	require.Equal(t, 3, pages)
	require.Equal(t, []uuid.UUID{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)
}

func TestHistoryExactPageHasNoCursor(t *testing.T) {
	f := newFixture(t, "windowed")
	store := f.seedStore(t, 3, false)
	member := uuid.New()
	for i := 0; i < 2; i++ {
		cert := &models.Certification{MemberID: member, StoreID: store.ID, Location: storeAnchor}
		require.NoError(t, f.certs.Create(context.Background(), cert))
	}

	page, err := f.svc.History(context.Background(), member, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Certifications, 2)
	require.Empty(t, page.NextCursor)
}

func TestHistoryRejectsBadInput(t *testing.T) {
	f := newFixture(t, "windowed")

	_, err := f.svc.History(context.Background(), uuid.Nil, pagination.Params{})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.History(context.Background(), uuid.New(), pagination.Params{Cursor: "not-a-cursor"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestHistoryEmpty(t *testing.T) {
	f := newFixture(t, "windowed")

	page, err := f.svc.History(context.Background(), uuid.New(), pagination.Params{})
	require.NoError(t, err)
	require.NotNil(t, page.Certifications)
	require.Empty(t, page.Certifications)
}
