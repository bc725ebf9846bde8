// Package auth resolves the caller of an HTTP request from a signed session
// token. Tokens are HS256 JWTs carrying an "id" claim and an optional
// "username" claim, read from the "token" cookie or a Bearer header.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const CookieName = "token"

var (
	ErrNoToken      = errors.New("auth: no token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

type Identity struct {
	ID       string
	Username string
}

// Resolver extracts the caller identity from a request.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

type ResolverFunc func(r *http.Request) (Identity, error)

func (f ResolverFunc) Resolve(r *http.Request) (Identity, error) { return f(r) }

type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (j *JWTResolver) Resolve(r *http.Request) (Identity, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return Identity{}, ErrNoToken
	}
	return j.Parse(raw)
}

// Parse verifies raw and returns its identity. The username is empty when the
// token carries none; callers apply their own fallback.
func (j *JWTResolver) Parse(raw string) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	id := claimString(claims["id"])
	if id == "" {
		return Identity{}, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	return Identity{ID: id, Username: claimString(claims["username"])}, nil
}

// Issue signs a token for id. ttl <= 0 produces a token without expiry.
func (j *JWTResolver) Issue(id, username string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"id": id}
	if username != "" {
		claims["username"] = username
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// TokenFromRequest prefers the session cookie and falls back to a Bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.ID != ""
}
