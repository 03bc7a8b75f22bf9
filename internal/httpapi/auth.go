package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"vendaflow/backend/internal/domain"
	"vendaflow/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLength = 8

// AuthManager issues and verifies the HS256 access tokens and owns the
// credential checks against the user store.
type AuthManager struct {
	repo   store.Repository
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(repo store.Repository, secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthManager{repo: repo, secret: []byte(secret), ttl: ttl}
}

func (a *AuthManager) Signup(ctx context.Context, req domain.SignupRequest) (*domain.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", store.ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", store.ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := a.repo.CreateUser(ctx, domain.UserAccount{
		Email:    email,
		Password: string(hash),
		Name:     strings.TrimSpace(req.Name),
	})
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	user, err := a.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison anyway so missing and wrong-password logins
			// take similar time.
			bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(req.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		Issuer:    "vendaflow",
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken: token,
		OwnerID:     user.ID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// Verify parses an access token and returns the owner id it was issued for.
func (a *AuthManager) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

// csrfToken derives a token from the shared secret and an hour bucket. Tokens
// from the current and previous hour verify, so a token is good for at least
// an hour.
func (a *AuthManager) csrfToken(bucket int64) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte("csrf:" + strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthManager) IssueCSRFToken() string {
	return a.csrfToken(time.Now().Unix() / 3600)
}

func (a *AuthManager) VerifyCSRFToken(token string) bool {
	bucket := time.Now().Unix() / 3600
	for _, b := range []int64{bucket, bucket - 1} {
		if hmac.Equal([]byte(token), []byte(a.csrfToken(b))) {
			return true
		}
	}
	return false
}
