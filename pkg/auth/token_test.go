package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "autoescrow-identity"}

func TestMintAndParseAccessToken(t *testing.T) {
	userID := uuid.New()
	token, err := MintAccessToken(testCfg, time.Now().UTC(), time.Hour, userID, enums.UserRoleAdmin)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(testCfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != testCfg.Issuer {
		t.Fatalf("issuer mismatch: %s", claims.Issuer)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now().Add(-2*time.Hour), time.Hour, uuid.New(), enums.UserRoleUser)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(testCfg, token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessTokenRejectsWrongIssuerAndSecret(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now(), time.Hour, uuid.New(), enums.UserRoleUser)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "secret", Issuer: "someone-else"}, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
	if _, err := ParseAccessToken(config.JWTConfig{Secret: "other", Issuer: testCfg.Issuer}, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestParseAccessTokenRejectsUnknownRole(t *testing.T) {
	claims := Claims{
		UserID: uuid.New(),
		Role:   enums.UserRole("superuser"),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(testCfg, token); err == nil {
		t.Fatal("expected invalid role error")
	}
}

func TestMintAccessTokenValidatesInput(t *testing.T) {
	if _, err := MintAccessToken(config.JWTConfig{Issuer: "x"}, time.Now(), time.Hour, uuid.New(), enums.UserRoleUser); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := MintAccessToken(testCfg, time.Now(), 0, uuid.New(), enums.UserRoleUser); err == nil {
		t.Fatal("expected ttl error")
	}
}

func TestVerifierAppliesLeeway(t *testing.T) {
	cfg := testCfg
	cfg.Leeway = time.Minute
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour-20*time.Second), time.Hour, uuid.New(), enums.UserRoleAdmin)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	v, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("token inside leeway should verify: %v", err)
	}
	if _, err := ParseAccessToken(testCfg, token); err == nil {
		t.Fatal("without leeway the token is expired")
	}
}

func TestVerifierRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		UserID: uuid.New(),
		Role:   enums.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(testCfg, token); err == nil {
		t.Fatal("alg none must be rejected")
	}
}
