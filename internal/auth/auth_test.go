package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-32-chars-long-for-hs256"

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := m.Issue("user-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.UserID != "user-1" || c.SessionID != "sess-1" {
		t.Errorf("claims = %+v", c)
	}
	if time.Until(c.ExpiresAt) <= 0 {
		t.Error("expiry should be in the future")
	}
}

func TestVerify_Expired(t *testing.T) {
	m, _ := NewManager(testSecret, time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.Issue("user-1", "sess-1")
	if err != nil {
		t.Fatal(err)
	}

	m.now = time.Now
	if _, err := m.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_Invalid(t *testing.T) {
	m, _ := NewManager(testSecret, time.Hour)
	other, _ := NewManager("different-secret-32-chars-long-for-hs256!!", time.Hour)
	forged, _ := other.Issue("user-1", "sess-1")

	noSession, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SessionID: "sess-1",
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: Issuer},
		SessionID:        "sess-1",
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"missing signature", "header.payload"},
		{"other secret", forged},
		{"no session", noSession},
		{"wrong issuer", wrongIssuer},
		{"no expiry", noExpiry},
		{"alg none", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + strings.Split(forged, ".")[1] + "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	if _, err := NewManager("", time.Hour); err == nil {
		t.Error("empty secret should be rejected")
	}
	m, err := NewManager(testSecret, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", m.ttl, DefaultTTL)
	}
}
