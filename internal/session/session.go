// Package session implements the session-token bridge between the browser and
// the upstream API: it mints a signed session cookie at sign-in time, rebuilds
// a Principal from that cookie on every request, and selects which IdP
// credential to forward upstream as the bearer.
//
// Resolution is deliberately infallible: a missing, malformed, expired, or
// tampered cookie yields "no principal" rather than an error, and each
// endpoint decides independently how to respond (usually 401; the featured
// endpoint degrades to a null result instead).
package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-poster-bff/internal/domain"
)

// Claims is the session JWT payload. Access and identity tokens from the IdP
// are carried opaquely; this layer never introspects them.
type Claims struct {
	AccessToken string   `json:"at,omitempty"`
	IDToken     string   `json:"idt,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session cookies. Safe for concurrent use; all
// fields are read-only after construction.
type Manager struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewManager constructs a Manager. The secret is the HS256 signing key;
// cookieName and ttl come from configuration.
func NewManager(secret, cookieName string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		secret:     []byte(secret),
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// CookieName returns the session cookie name this manager reads and writes.
func (m *Manager) CookieName() string { return m.cookieName }

// Issue mints a signed session token for the given identity. Expiry is
// now + TTL; the token is self-contained so no server-side state is kept.
func (m *Manager) Issue(subject, accessToken, idToken string, groups []string, now time.Time) (string, error) {
	claims := Claims{
		AccessToken: accessToken,
		IDToken:     idToken,
		Groups:      groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}

// Resolve extracts and validates the session cookie from an inbound request.
// It returns nil when no valid session is present, never an error, so
// callers can treat "no principal" uniformly regardless of the failure mode.
func (m *Manager) Resolve(r *http.Request) *domain.Principal {
	if r == nil {
		return nil
	}
	ck, err := r.Cookie(m.cookieName)
	if err != nil || ck.Value == "" {
		return nil
	}
	return m.parse(ck.Value)
}

// parse verifies signature and registered claims (exp/iat) of a raw token.
func (m *Manager) parse(raw string) *domain.Principal {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil
	}
	return &domain.Principal{
		Subject:     claims.Subject,
		AccessToken: claims.AccessToken,
		IDToken:     claims.IDToken,
		Groups:      claims.Groups,
	}
}

// SetCookie writes the session cookie on a response.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on a response.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SelectBearer picks the credential to forward upstream: the access credential
// when present, the identity credential otherwise. This is the single policy
// point: every proxy endpoint must go through it so the preference order
// cannot drift between handlers. Returns ok=false when the principal carries
// no usable credential (or is nil), in which case callers fail closed.
func SelectBearer(p *domain.Principal) (string, bool) {
	if p == nil {
		return "", false
	}
	if p.AccessToken != "" {
		return p.AccessToken, true
	}
	if p.IDToken != "" {
		return p.IDToken, true
	}
	return "", false
}
