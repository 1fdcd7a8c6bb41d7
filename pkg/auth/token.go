package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Role enumerates the actors the API distinguishes between.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	default:
		return false
	}
}

// AccessTokenClaims is the JWT payload carried by authenticated requests.
type AccessTokenClaims struct {
	UserID string `json:"uid"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// MintAccessToken issues a signed JWT for the provided identity.
func MintAccessToken(cfg config.JWTConfig, now time.Time, userID uuid.UUID, role Role) (string, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", role)
	}

	claims := AccessTokenClaims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL())),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates the JWT string and returns typed claims.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
