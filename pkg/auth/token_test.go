package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "lankacart", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Email: " nimal@example.lk "})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Email != "nimal@example.lk" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
	if claims.Role != ShopperRole || claims.Subject != userID.String() {
		t.Fatalf("unexpected role/subject %s/%s", claims.Role, claims.Subject)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("unexpected ttl %s", got)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testConfig()
	userID := uuid.New()
	valid, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: userID})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: userID})
	if err != nil {
		t.Fatalf("mint expired: %v", err)
	}
	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	foreign, err := MintAccessToken(otherIssuer, time.Now(), AccessTokenPayload{UserID: userID})
	if err != nil {
		t.Fatalf("mint foreign: %v", err)
	}
	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{UserID: userID, Role: ShopperRole}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("mint none: %v", err)
	}

	wrongSecret := cfg
	wrongSecret.Secret = "other"
	cases := map[string]struct {
		cfg   config.JWTConfig
		token string
	}{
		"expired":      {cfg, expired},
		"issuer":       {cfg, foreign},
		"secret":       {wrongSecret, valid},
		"none alg":     {cfg, noneAlg},
		"garbage":      {cfg, "not.a.jwt"},
		"tampered":     {cfg, valid[:len(valid)-2] + "xx"},
		"empty secret": {config.JWTConfig{}, valid},
	}
	for name, tc := range cases {
		if _, err := ParseAccessToken(tc.cfg, tc.token); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMintAccessTokenValidates(t *testing.T) {
	cases := map[string]struct {
		cfg     config.JWTConfig
		payload AccessTokenPayload
		want    string
	}{
		"secret": {config.JWTConfig{Issuer: "i", ExpirationMinutes: 1}, AccessTokenPayload{UserID: uuid.New()}, "secret"},
		"issuer": {config.JWTConfig{Secret: "s", ExpirationMinutes: 1}, AccessTokenPayload{UserID: uuid.New()}, "issuer"},
		"ttl":    {config.JWTConfig{Secret: "s", Issuer: "i"}, AccessTokenPayload{UserID: uuid.New()}, "expiration"},
		"user":   {testConfig(), AccessTokenPayload{}, "user id"},
		"role":   {testConfig(), AccessTokenPayload{UserID: uuid.New(), Role: "vendor"}, "role"},
	}
	for name, tc := range cases {
		_, err := MintAccessToken(tc.cfg, time.Now(), tc.payload)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", name, tc.want, err)
		}
	}
}

func TestAdminRoleRoundTrips(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: AdminRole})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != AdminRole {
		t.Fatalf("expected admin role, got %s", claims.Role)
	}
}
