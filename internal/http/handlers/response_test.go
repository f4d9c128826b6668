package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/upstream"
)

func TestFail_WritesEnvelopeWithRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Writer.Header().Set("X-Request-ID", "rid-1")

	fail(c, http.StatusNotFound, ErrCodeNotFound, "record not found")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RequestID != "rid-1" || resp.Code != ErrCodeNotFound || resp.Message != "record not found" {
		t.Fatalf("resp = %+v", resp)
	}
	if !c.IsAborted() {
		t.Fatalf("fail must abort the chain")
	}
}

func TestRelay_VerbatimAndBodyless(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	relay(c, &upstream.Reply{Status: http.StatusTeapot, Body: []byte(`{"x":1}`), ContentType: "application/vnd.x+json"})
	if w.Code != http.StatusTeapot || w.Body.String() != `{"x":1}` {
		t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.x+json" {
		t.Fatalf("content-type = %q", ct)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	relay(c, &upstream.Reply{Status: http.StatusNoContent, ContentType: "application/json"})
	// Outside an engine the recorded status is only flushed on demand.
	c.Writer.WriteHeaderNow()
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("204 relay: code = %d body = %q", w.Code, w.Body.String())
	}
}
