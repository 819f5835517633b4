package security

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParseUserToken(t *testing.T) {
	now := time.Now()
	token, expiresAt, err := IssueUserToken("secret", "user-1", "a@example.com", time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expiresAt.After(now) {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	claims, err := ParseUserToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseUserTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := IssueUserToken("secret", "user-1", "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseUserToken("other", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseUserTokenRejectsExpired(t *testing.T) {
	token, _, err := IssueUserToken("secret", "user-1", "", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseUserToken("secret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", errParse)
	}
}

func TestIssueUserTokenRequiresSecret(t *testing.T) {
	if _, _, err := IssueUserToken(" ", "user-1", "", time.Hour, time.Now()); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong horse") {
		t.Fatalf("expected mismatch")
	}
	if _, errShort := HashPassword("short"); !errors.Is(errShort, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", errShort)
	}
}
