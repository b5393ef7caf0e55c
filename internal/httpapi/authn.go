package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sentinel.org/internal/api"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// SessionCookieName carries a signed session id for browser callers.
	SessionCookieName = "sentinel_session"
	cookieIssuer      = "sentinel"
)

// ErrInvalidCookie indicates the session cookie failed validation.
var ErrInvalidCookie = errors.New("invalid session cookie")

// CookieSigner issues and verifies HS256-signed session cookies.
type CookieSigner struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewCookieSigner requires a secret of at least 32 bytes.
func NewCookieSigner(secret string, ttl time.Duration, secure bool) (*CookieSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("cookie secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("cookie ttl must be greater than zero")
	}
	return &CookieSigner{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}, nil
}

// Sign wraps a session id into a signed token.
func (s *CookieSigner) Sign(sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("session id is required")
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    cookieIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign cookie: %w", err)
	}
	return signed, nil
}

// Parse verifies a signed token and returns the session id it carries.
func (s *CookieSigner) Parse(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidCookie
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCookie
	}
	if err := s.validateClaims(&claims); err != nil {
		return "", ErrInvalidCookie
	}
	return claims.Subject, nil
}

func (s *CookieSigner) validateClaims(claims *jwt.RegisteredClaims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.IssuedAt == nil {
		return errors.New("issued-at missing")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(s.now().Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

// Cookie builds the cookie for a fresh session.
func (s *CookieSigner) Cookie(sessionID string) (*http.Cookie, error) {
	value, err := s.Sign(sessionID)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}, nil
}

// Clear builds a cookie that removes the session cookie.
func (s *CookieSigner) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SessionFromRequest returns the session id of a valid cookie.
func (s *CookieSigner) SessionFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	sid, err := s.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return sid, true
}

// credential picks the bearer for one call: the Authorization header, then
// the auth member, then the session cookie. Methods that take no
// credential only ever see the auth member so the dispatcher can reject it.
func (a *API) credential(r *http.Request, service, method string, member *string) *string {
	if !api.RequiresAuth(service, method) {
		return member
	}
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		return &token
	}
	if member != nil {
		return member
	}
	if a.cookies != nil {
		if sid, ok := a.cookies.SessionFromRequest(r); ok {
			return &sid
		}
	}
	return nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
