package auth

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
)

// Clock skew tolerated between the identity service and this API.
const clockLeeway = 30 * time.Second

var (
	errSecretRequired = errors.New("jwt secret is required")
	errIssuerRequired = errors.New("jwt issuer is required")
	errTTLRequired    = errors.New("jwt expiration minutes must be positive")
	errNoUser         = errors.New("token has no user id")
)

func signingKey(cfg config.JWTConfig) ([]byte, error) {
	if cfg.Secret == "" {
		return nil, errSecretRequired
	}
	return []byte(cfg.Secret), nil
}

// MintAccessToken signs an HS256 token for payload. The role defaults to
// shopper and the jti to a fresh uuid.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return "", err
	}
	switch {
	case cfg.Issuer == "":
		return "", errIssuerRequired
	case cfg.ExpirationMinutes <= 0:
		return "", errTTLRequired
	case payload.UserID == uuid.Nil:
		return "", fmt.Errorf("mint: %w", errNoUser)
	}

	role := cmp.Or(strings.TrimSpace(payload.Role), ShopperRole)
	if !ValidRole(role) {
		return "", fmt.Errorf("unsupported role %q", role)
	}

	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  strings.TrimSpace(payload.Email),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        cmp.Or(strings.TrimSpace(payload.JTI), uuid.NewString()),
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken accepts only HS256 tokens from the configured issuer that
// carry an expiry, a user and a known role.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	key, err := signingKey(cfg)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return nil, err
	}

	if claims.UserID == uuid.Nil {
		return nil, errNoUser
	}
	if !ValidRole(claims.Role) {
		return nil, fmt.Errorf("unsupported role %q", claims.Role)
	}
	return claims, nil
}
