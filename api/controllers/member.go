package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/api/middleware"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
)

func memberFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.MemberIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "member context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid member id")
	}
	return id, nil
}
