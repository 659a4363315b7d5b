// Package auth resolves the bearer credential presented at connection time
// to a stable actor identifier.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for a missing, malformed, expired or
// otherwise invalid credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier validates a credential and returns the actor it identifies.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// Claims is the token payload. The actor identifier travels as userId and
// falls back to the registered subject.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HMAC-SHA256 signed tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for tokens signed with secret. When
// issuer is non-empty the iss claim must match it.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify implements Verifier.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("%w: no credential", ErrUnauthenticated)
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	actorID := claims.UserID
	if actorID == "" {
		actorID = claims.Subject
	}
	if actorID == "" {
		return "", fmt.Errorf("%w: token carries no actor", ErrUnauthenticated)
	}
	return actorID, nil
}

// Issue signs a token for actorID that expires after ttl. It backs the
// token CLI command and tests; production tokens come from the login
// service.
func (v *JWTVerifier) Issue(actorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// CredentialFromRequest extracts the credential from the Authorization
// header, falling back to the token query parameter since browsers cannot
// set headers on a WebSocket handshake.
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
