package auth

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
)

func TestTokenIssuerRoundTripsThroughValidator(t *testing.T) {
	clockNow := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return clockNow }

	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "storage-manager",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueAccessToken(context.Background(), inventory.Identity{
		ID:           "user-123",
		Email:        "user@example.com",
		UserMetadata: map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry: %d", expiresIn)
	}

	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "storage-manager",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	claims, err := validator.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if claims.Subject != "user-123" || claims.Email != "user@example.com" || claims.Role != "authenticated" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if claims.UserMetadata["name"] != "Ada" {
		t.Fatalf("expected metadata in token, got %#v", claims.UserMetadata)
	}
}

func TestTokenIssuerValidation(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{Issuer: "x"}); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
	if _, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("k")}); err == nil {
		t.Fatalf("expected missing issuer to be rejected")
	}
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("k"), Issuer: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := issuer.IssueAccessToken(context.Background(), inventory.Identity{}); err == nil {
		t.Fatalf("expected missing subject to be rejected")
	}
}
