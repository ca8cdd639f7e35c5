// Package auth resolves the caller's user id before any memory operation runs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const (
	ModeJWT    = "jwt"
	ModeHeader = "header"

	DefaultUserHeader = "X-User-ID"
)

var ErrUnauthorized = errors.New("could not validate credentials")

type ctxKey struct{}

// Config selects how requests are authenticated.
type Config struct {
	Mode       string
	JWTSecret  string
	JWTIssuer  string
	UserHeader string
}

// Authenticator extracts a user id from a request.
type Authenticator struct {
	mode       string
	secret     []byte
	issuer     string
	userHeader string
}

func New(cfg Config) (*Authenticator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeJWT
	}
	a := &Authenticator{
		mode:       mode,
		secret:     []byte(cfg.JWTSecret),
		issuer:     strings.TrimSpace(cfg.JWTIssuer),
		userHeader: strings.TrimSpace(cfg.UserHeader),
	}
	if a.userHeader == "" {
		a.userHeader = DefaultUserHeader
	}
	switch mode {
	case ModeJWT:
		if len(a.secret) == 0 {
			return nil, errors.New("AUTH_JWT_SECRET is required in jwt mode")
		}
	case ModeHeader:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
	return a, nil
}

func (a *Authenticator) Mode() string { return a.mode }

// Authenticate returns the user id carried by r.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if a.mode == ModeHeader {
		user := strings.TrimSpace(r.Header.Get(a.userHeader))
		if user == "" {
			return "", ErrUnauthorized
		}
		return user, nil
	}

	raw := bearerToken(r)
	if raw == "" {
		// Browsers cannot set headers on websocket upgrades.
		raw = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if raw == "" {
		return "", ErrUnauthorized
	}
	return a.ParseToken(raw)
}

// ParseToken validates an HS256 token and returns its subject.
func (a *Authenticator) ParseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return "", ErrUnauthorized
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrUnauthorized
	}
	return sub, nil
}

// Middleware rejects unauthenticated requests and stores the user id on the context.
func (a *Authenticator) Middleware(onFail func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.Authenticate(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, or "" when none is set.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
