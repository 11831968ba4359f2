package service

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	key := []byte("test-signing-key")

	token, err := generateToken("u1", false, time.Hour, key)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	meta, err := ParseToken(token, key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.UserID != "u1" {
		t.Fatalf("user id = %q, want u1", meta.UserID)
	}
	if meta.Otp {
		t.Fatal("otp flag set on a full token")
	}
	if meta.Exp <= time.Now().Unix() {
		t.Fatalf("expiry %d not in the future", meta.Exp)
	}
}

func TestTokenCarriesOtpPendingClaim(t *testing.T) {
	key := []byte("test-signing-key")

	token, err := generateToken("u1", true, time.Hour, key)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	meta, err := ParseToken(token, key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !meta.Otp {
		t.Fatal("otp-pending claim lost in round trip")
	}
}

func TestTokenRejectedWithWrongKey(t *testing.T) {
	token, err := generateToken("u1", false, time.Hour, []byte("key-a"))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ParseToken(token, []byte("key-b")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	key := []byte("test-signing-key")

	token, err := generateToken("u1", false, -time.Minute, key)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := ParseToken(token, key); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
