package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/store"
	"vendaflow/backend/internal/store/memory"
)

func newAuth(t *testing.T) *AuthManager {
	t.Helper()
	return NewAuthManager(memory.New(), "test-secret", time.Hour)
}

func TestSignupLoginVerify(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	user, err := auth.Signup(ctx, domain.SignupRequest{Email: "Ana@Example.com", Password: "correct-horse", Name: "Ana"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Email != "ana@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.Password != "" {
		t.Error("password hash leaked in signup response")
	}

	resp, err := auth.Login(ctx, domain.LoginRequest{Email: "ana@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.OwnerID != user.ID {
		t.Errorf("owner = %q, want %q", resp.OwnerID, user.ID)
	}

	ownerID, err := auth.Verify(resp.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ownerID != user.ID {
		t.Errorf("verified owner = %q, want %q", ownerID, user.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	if _, err := auth.Signup(ctx, domain.SignupRequest{Email: "ana@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "ana@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Email: "ghost@example.com", Password: "whatever"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignupValidation(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	if _, err := auth.Signup(ctx, domain.SignupRequest{Email: "not-an-email", Password: "long-enough"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("bad email: err = %v, want ErrInvalidInput", err)
	}
	if _, err := auth.Signup(ctx, domain.SignupRequest{Email: "ana@example.com", Password: "short"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("short password: err = %v, want ErrInvalidInput", err)
	}

	if _, err := auth.Signup(ctx, domain.SignupRequest{Email: "ana@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := auth.Signup(ctx, domain.SignupRequest{Email: "ana@example.com", Password: "long-enough"}); !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("duplicate email: err = %v, want ErrDuplicateName", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	auth := newAuth(t)
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := auth.Verify(token); err == nil {
			t.Errorf("Verify(%q) succeeded, want error", token)
		}
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	repo := memory.New()
	a := NewAuthManager(repo, "secret-a", time.Hour)
	b := NewAuthManager(repo, "secret-b", time.Hour)
	ctx := context.Background()

	if _, err := a.Signup(ctx, domain.SignupRequest{Email: "ana@example.com", Password: "long-enough"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	resp, err := a.Login(ctx, domain.LoginRequest{Email: "ana@example.com", Password: "long-enough"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := b.Verify(resp.AccessToken); err == nil {
		t.Error("token signed with another secret verified")
	}
}

func TestCSRFToken(t *testing.T) {
	auth := newAuth(t)

	token := auth.IssueCSRFToken()
	if !auth.VerifyCSRFToken(token) {
		t.Error("freshly issued CSRF token rejected")
	}
	if auth.VerifyCSRFToken("") || auth.VerifyCSRFToken("bogus") {
		t.Error("bogus CSRF token accepted")
	}

	other := NewAuthManager(memory.New(), "other-secret", time.Hour)
	if other.VerifyCSRFToken(token) {
		t.Error("CSRF token verified under a different secret")
	}
}
