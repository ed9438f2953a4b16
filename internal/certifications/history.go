package certifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/pkg/db/models"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/pagination"
)

// HistoryPage is one page of a member's certifications.
type HistoryPage struct {
	Certifications []CertificationDTO `json:"certifications"`
	NextCursor     string             `json:"next_cursor,omitempty"`
}

// History lists the member's own certifications, newest first.
func (s *service) History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.certs.ListByMember(ctx, memberID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list certifications")
	}

	rows, next := pagination.Trim(rows, params.Limit, func(c models.Certification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	page := &HistoryPage{Certifications: make([]CertificationDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Certifications = append(page.Certifications, *FromModel(&rows[i]))
	}
	return page, nil
}
