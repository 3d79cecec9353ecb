// Package auth provides password hashing and JWT session tokens for the
// reader accounts, plus the HTTP middleware that guards authenticated
// endpoints.
package auth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenTTL is how long an issued session token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Opts holds configuration options for the auth service.
type Opts struct {
	Secret   string        // HMAC signing secret for session tokens
	TokenTTL time.Duration // token lifetime; defaults to DefaultTokenTTL
}

// Option defines a configuration option for the auth service.
type Option func(*Opts)

// WithSecret sets the HMAC signing secret.
func WithSecret(secret string) Option {
	return func(o *Opts) {
		o.Secret = secret
	}
}

// WithTokenTTL sets the session token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TokenTTL = ttl
	}
}

// Service issues and verifies session tokens and hashes passwords.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates an auth service, applying any provided options.
func NewService(opts ...Option) (*Service, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Secret == "" {
		slog.Error("auth.NewService: signing secret not set")
		return nil, fmt.Errorf("JWT signing secret not set")
	}
	// Zero means unset. A negative TTL is honored so tests can mint
	// already-expired tokens.
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	slog.Debug("auth.NewService: service created", "token_ttl", ttl)
	return &Service{secret: []byte(cfg.Secret), ttl: ttl}, nil
}

// HashPassword hashes a plaintext password for storage.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the stored hash.
func (s *Service) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken creates a signed session token carrying the username.
func (s *Service) IssueToken(username string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		slog.Error("auth.IssueToken: signing failed", "error", err, "username", username)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	slog.Debug("auth.IssueToken: token issued", "username", username)
	return signed, nil
}

// VerifyToken validates a session token and returns the username it carries.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("token missing username claim")
	}
	return username, nil
}
