package session

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-poster-bff/internal/domain"
)

func newTestManager() *Manager {
	return NewManager("test-secret", "psn_session", time.Hour, false)
}

// --- Issue / Resolve round trip ---

func TestIssueResolve_RoundTrip(t *testing.T) {
	m := newTestManager()

	tok, err := m.Issue("user-1", "access-tok", "id-tok", []string{"admin", "users"}, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "psn_session="+tok)

	p := m.Resolve(req)
	if p == nil {
		t.Fatalf("expected principal")
	}
	if p.Subject != "user-1" || p.AccessToken != "access-tok" || p.IDToken != "id-tok" {
		t.Fatalf("principal mismatch: %+v", p)
	}
	if len(p.Groups) != 2 || p.Groups[0] != "admin" {
		t.Fatalf("groups mismatch: %+v", p.Groups)
	}
	if !p.IsAdmin() {
		t.Fatalf("expected admin principal")
	}
}

// --- Failure modes never error, only yield nil ---

func TestResolve_NoCookie(t *testing.T) {
	m := newTestManager()
	req := httptest.NewRequest("GET", "/", nil)
	if p := m.Resolve(req); p != nil {
		t.Fatalf("expected nil principal, got %+v", p)
	}
	if p := m.Resolve(nil); p != nil {
		t.Fatalf("nil request must yield nil principal")
	}
}

func TestResolve_GarbageToken(t *testing.T) {
	m := newTestManager()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "psn_session=not.a.jwt")
	if p := m.Resolve(req); p != nil {
		t.Fatalf("garbage token must yield nil principal")
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	m := newTestManager()
	tok, err := m.Issue("user-1", "at", "", nil, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "psn_session="+tok)
	if p := m.Resolve(req); p != nil {
		t.Fatalf("expired token must yield nil principal")
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	other := NewManager("other-secret", "psn_session", time.Hour, false)
	tok, err := other.Issue("user-1", "at", "", nil, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m := newTestManager()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "psn_session="+tok)
	if p := m.Resolve(req); p != nil {
		t.Fatalf("token signed with another secret must yield nil principal")
	}
}

func TestResolve_RejectsNonHMACAlg(t *testing.T) {
	// An unsigned token ("none" alg) must never validate.
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "evil"},
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	m := newTestManager()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Cookie", "psn_session="+raw)
	if p := m.Resolve(req); p != nil {
		t.Fatalf("none-alg token must yield nil principal")
	}
}

// --- Cookie writing ---

func TestSetAndClearCookie(t *testing.T) {
	m := newTestManager()

	w := httptest.NewRecorder()
	m.SetCookie(w, "tokval")
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "psn_session" || cookies[0].Value != "tokval" {
		t.Fatalf("set cookie unexpected: %+v", cookies)
	}
	if !cookies[0].HttpOnly || cookies[0].Path != "/" {
		t.Fatalf("cookie attributes unexpected: %+v", cookies[0])
	}

	w = httptest.NewRecorder()
	m.ClearCookie(w)
	cookies = w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("clear cookie unexpected: %+v", cookies)
	}
}

// --- Bearer selection policy ---

func TestSelectBearer_Precedence(t *testing.T) {
	// Access credential wins when both are present.
	b, ok := SelectBearer(&domain.Principal{AccessToken: "at", IDToken: "idt"})
	if !ok || b != "at" {
		t.Fatalf("want access token, got %q ok=%v", b, ok)
	}

	// Identity credential is the fallback.
	b, ok = SelectBearer(&domain.Principal{IDToken: "idt"})
	if !ok || b != "idt" {
		t.Fatalf("want id token, got %q ok=%v", b, ok)
	}

	// Fail closed.
	if _, ok := SelectBearer(&domain.Principal{}); ok {
		t.Fatalf("principal without credentials must not yield a bearer")
	}
	if _, ok := SelectBearer(nil); ok {
		t.Fatalf("nil principal must not yield a bearer")
	}
}
