package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/pkg/enums"
)

// AccessTokenPayload captures the data carried by a member token.
type AccessTokenPayload struct {
	MemberID uuid.UUID
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims is the typed JWT issued by the auth service.
type AccessTokenClaims struct {
	MemberID uuid.UUID        `json:"member_id"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
