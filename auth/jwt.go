package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator accepts HS256 tokens whose subject is the account identifier
type JWTValidator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// JWTOption configures a JWTValidator
type JWTOption func(*JWTValidator)

// WithIssuer requires (and, when issuing, sets) the iss claim
func WithIssuer(issuer string) JWTOption {
	return func(v *JWTValidator) { v.issuer = issuer }
}

// WithLeeway tolerates clock skew when checking exp and nbf
func WithLeeway(d time.Duration) JWTOption {
	return func(v *JWTValidator) { v.leeway = d }
}

// WithTimeFunc overrides the clock, for tests
func WithTimeFunc(now func() time.Time) JWTOption {
	return func(v *JWTValidator) { v.now = now }
}

// NewJWTValidator creates a validator for tokens signed with secret
func NewJWTValidator(secret string, opts ...JWTOption) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	v := &JWTValidator{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate parses the token and returns its subject
func (v *JWTValidator) Validate(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return subject, nil
}

// Issue signs a token for accountID valid for ttl
func (v *JWTValidator) Issue(accountID string, ttl time.Duration) (string, error) {
	if accountID == "" {
		return "", errors.New("account ID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
