package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/config"
	"github.com/tbourn/go-poster-bff/internal/domain"
	"github.com/tbourn/go-poster-bff/internal/session"
	"github.com/tbourn/go-poster-bff/internal/upstream"
)

// ---------- flexible upstream stub ----------

// forwardCall captures one Forward invocation for assertions.
type forwardCall struct {
	Method      string
	SubPath     string
	Query       url.Values
	Body        []byte
	ContentType string
	Bearer      string
}

type stubUpstream struct {
	forward func(call forwardCall) (*upstream.Reply, error)
	find    func(bearer, sk string) (*domain.HistoryRecord, error)
	fetch   func(imageURL string) ([]byte, string, error)

	calls int32
	last  atomic.Value // forwardCall
}

func (s *stubUpstream) Forward(ctx context.Context, method, subPath string, query url.Values, body []byte, contentType, bearer string) (*upstream.Reply, error) {
	atomic.AddInt32(&s.calls, 1)
	call := forwardCall{Method: method, SubPath: subPath, Query: query, Body: body, ContentType: contentType, Bearer: bearer}
	s.last.Store(call)
	if s.forward != nil {
		return s.forward(call)
	}
	return &upstream.Reply{Status: http.StatusOK, Body: []byte(`{}`), ContentType: "application/json"}, nil
}

func (s *stubUpstream) FindBySortKey(ctx context.Context, bearer, sk string) (*domain.HistoryRecord, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.find != nil {
		return s.find(bearer, sk)
	}
	return nil, nil
}

func (s *stubUpstream) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.fetch != nil {
		return s.fetch(imageURL)
	}
	return []byte("IMG"), "image/png", nil
}

func (s *stubUpstream) callCount() int32 { return atomic.LoadInt32(&s.calls) }

func (s *stubUpstream) lastCall(t *testing.T) forwardCall {
	t.Helper()
	v := s.last.Load()
	if v == nil {
		t.Fatalf("no upstream call recorded")
	}
	return v.(forwardCall)
}

// ---------- router harness ----------

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxPromptChars:        1000,
		EditMaxImageBytes:     5 << 20,
		EditMaxPromptChars:    800,
		EditMaxNegPromptChars: 800,
	}
}

func testSessions() *session.Manager {
	return session.NewManager("test-secret", "psn_session", time.Hour, false)
}

// newAPI builds a minimal engine with the API routes mounted. When p is
// non-nil it is injected the way the session middleware would.
func newAPI(up Upstream, p *domain.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if p != nil {
		r.Use(func(c *gin.Context) {
			c.Set("principal", p)
			c.Next()
		})
	}
	h := New(up, testSessions(), testLimits(), config.AuthConfig{Enabled: false})

	r.GET("/api/credits", h.GetCredits)
	r.GET("/api/generate", h.GetGenerate)
	r.POST("/api/generate", h.PostGenerate)
	r.POST("/api/edit", h.PostEdit)
	r.GET("/api/history", h.ListHistory)
	r.DELETE("/api/history/delete", h.DeleteHistory)
	r.POST("/api/history/featured", h.FeatureHistory)
	r.GET("/api/history/download", h.Download)
	r.GET("/api/featured", h.GetFeatured)
	r.POST("/api/share/create", h.CreateShare)
	r.GET("/api/share/:id", h.GetShared)
	r.GET("/api/auth/session", h.Session)
	r.GET("/api/auth/logout", h.Logout)
	return r
}

func authedPrincipal() *domain.Principal {
	return &domain.Principal{Subject: "user-1", AccessToken: "at", IDToken: "idt"}
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
