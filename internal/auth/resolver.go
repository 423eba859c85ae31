package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the JWT claim set issued by the auth layer.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// IdentityResolver turns a bearer credential into a user identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (models.User, error)
}

// Resolver verifies HS256 tokens and loads the user record behind them.
type Resolver struct {
	secret   []byte
	userRepo repositories.UserRepository
}

// NewResolver constructs a Resolver.
func NewResolver(secret string, userRepo repositories.UserRepository) *Resolver {
	return &Resolver{secret: []byte(secret), userRepo: userRepo}
}

// Resolve parses and verifies the credential, then confirms the referenced
// user still exists. Any failure rejects the caller before registration.
func (r *Resolver) Resolve(ctx context.Context, token string) (models.User, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return models.User{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.User{}, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.User{}, ErrInvalidToken
	}

	user, err := r.userRepo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.User{}, ErrInvalidToken
		}
		return models.User{}, err
	}
	return user, nil
}

// IssueToken signs a token for the user. Used by tests and tooling; the
// production issuer lives in the auth service.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
