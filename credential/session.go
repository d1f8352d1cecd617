package credential

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	ErrNoSession     = errors.New("no session cookie")
	ErrNoTokenClaim  = errors.New("session carries no backend token")
	ErrNotConfigured = errors.New("session lookup is not configured")
)

// sessionClaims mirrors the session cookie written by the dashboard's sign-in
// flow. Any of the token claims may carry the backend credential.
type sessionClaims struct {
	jwt.RegisteredClaims
	BackendToken string `json:"backendToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	Token        string `json:"token,omitempty"`
}

func (c sessionClaims) backendToken() string {
	for _, v := range []string{c.BackendToken, c.AccessToken, c.Token} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// JWTSession reads an HS256-signed session cookie and returns the backend
// token stored in it.
type JWTSession struct {
	Secret      []byte
	CookieNames []string
	Now         func() time.Time
}

func NewJWTSession(secret string, cookieNames []string) *JWTSession {
	return &JWTSession{
		Secret:      []byte(secret),
		CookieNames: cookieNames,
	}
}

func (s *JWTSession) Lookup(r *http.Request) (string, error) {
	if s == nil || len(s.Secret) == 0 {
		return "", ErrNotConfigured
	}
	raw := ""
	for _, name := range s.CookieNames {
		if c, err := r.Cookie(name); err == nil && strings.TrimSpace(c.Value) != "" {
			raw = strings.TrimSpace(c.Value)
			break
		}
	}
	if raw == "" {
		return "", ErrNoSession
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(s.Now))
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Wrap(err, "decode session")
	}
	token := claims.backendToken()
	if token == "" {
		return "", ErrNoTokenClaim
	}
	return token, nil
}

// SignSession issues a session cookie value carrying token. The dashboard's
// sign-in flow and tests use it.
func SignSession(secret string, token string, ttl time.Duration, now time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		BackendToken: token,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign session")
	}
	return signed, nil
}
