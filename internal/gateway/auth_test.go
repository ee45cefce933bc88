package gateway

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	verifier, err := NewJWTVerifier("secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := SignAccessToken("secret", Identity{UserID: 7, Name: "Bao", AvatarURL: "b.png"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != 7 || identity.Name != "Bao" || identity.AvatarURL != "b.png" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier, err := NewJWTVerifier("secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := SignAccessToken("other-secret", Identity{UserID: 7}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier, err := NewJWTVerifier("secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := SignAccessToken("secret", Identity{UserID: 7}, time.Nanosecond)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := verifier.Verify(context.Background(), token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	verifier, err := NewJWTVerifier("secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
	if _, err := verifier.Verify(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier("   "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestSignAccessTokenValidation(t *testing.T) {
	if _, err := SignAccessToken("", Identity{UserID: 1}, time.Hour); err == nil {
		t.Fatal("expected error for blank secret")
	}
	if _, err := SignAccessToken("secret", Identity{}, time.Hour); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestBearerTokenExtraction(t *testing.T) {
	req := httptest.NewRequest("GET", "/chat/message", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Fatalf("expected header token, got %q", got)
	}

	req = httptest.NewRequest("GET", "/ws-chat?token=xyz", nil)
	if got := bearerToken(req); got != "xyz" {
		t.Fatalf("expected query token, got %q", got)
	}

	req = httptest.NewRequest("GET", "/chat/message", nil)
	if got := bearerToken(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
