package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/security-onion-solutions/shallot/internal/domain"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 30*time.Minute)

	token, err := tm.Generate(domain.WebUser{Username: "admin", IsSuperuser: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := tm.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Username != "admin" {
		t.Fatalf("expected sub 'admin', got %q", claims.Username)
	}
	if !claims.IsSuperuser {
		t.Fatal("expected is_superuser claim")
	}
	if time.Until(claims.ExpiresAt) > 30*time.Minute {
		t.Fatal("expiry further out than the configured TTL")
	}
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)

	token, err := tm.Generate(domain.WebUser{Username: "admin"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := tm.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenManager_WrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", time.Hour)
	other := NewTokenManager("secret-b", time.Hour)

	token, err := tm.Generate(domain.WebUser{Username: "admin"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestTokenManager_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	if _, err := tm.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPassword_HashAndCheck(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash should not equal the password")
	}
	if !CheckPassword(hash, "hunter2") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "hunter3") {
		t.Fatal("wrong password accepted")
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse battery staple")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := s.Seal([]byte(`{"clientSecret":"abc"}`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == `{"clientSecret":"abc"}` {
		t.Fatal("sealed value should not be plaintext")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(opened) != `{"clientSecret":"abc"}` {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a, _ := NewSealer("key-a")
	b, _ := NewSealer("key-b")

	sealed, err := a.Seal([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(sealed); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("expected ErrSealedValue with wrong key, got %v", err)
	}
}

func TestSealer_Tampered(t *testing.T) {
	s, _ := NewSealer("key")
	sealed, err := s.Seal([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	tampered := "A" + sealed[1:]
	if _, err := s.Open(tampered); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("expected ErrSealedValue for tampered input, got %v", err)
	}
}

func TestSealer_EmptyPassphrase(t *testing.T) {
	if _, err := NewSealer(""); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}
