package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/pkg/config"
)

// clockSkew tolerates small clock drift between the auth service and this API.
const clockSkew = 30 * time.Second

var jwtSigningMethod = jwt.SigningMethodHS256

func requireSecret(cfg config.JWTConfig) error {
	if strings.TrimSpace(cfg.Secret) == "" {
		return errors.New("jwt secret is required")
	}
	return nil
}

// MintAccessToken signs a member token. Production tokens come from the auth
// service; this exists for local runs and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := requireSecret(cfg); err != nil {
		return "", err
	}
	switch {
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.MemberID == uuid.Nil:
		return "", errors.New("member id is required")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("invalid member role %q", payload.Role)
	}

	tokenID := strings.TrimSpace(payload.JTI)
	if tokenID == "" {
		tokenID = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		MemberID: payload.MemberID,
		Role:     payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    cfg.Issuer,
			Subject:   payload.MemberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign member token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies an HS256 member token. It must be unexpired, come
// from the configured issuer, and name the same member in sub and member_id.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if err := requireSecret(cfg); err != nil {
		return nil, err
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}

	switch {
	case claims.MemberID == uuid.Nil:
		return nil, errors.New("token is missing member_id")
	case claims.Subject != "" && claims.Subject != claims.MemberID.String():
		return nil, errors.New("token subject does not match member_id")
	case !claims.Role.IsValid():
		return nil, fmt.Errorf("token carries invalid role %q", claims.Role)
	}
	return claims, nil
}
