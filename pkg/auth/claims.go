package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried by access tokens. Admins may also act as shoppers.
const (
	ShopperRole = "shopper"
	AdminRole   = "admin"
)

// ValidRole reports whether the API accepts tokens carrying role.
func ValidRole(role string) bool {
	return role == ShopperRole || role == AdminRole
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   string
	JTI    string
}

// AccessTokenClaims is the shopper token issued by the identity service.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}
