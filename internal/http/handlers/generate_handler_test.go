package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tbourn/go-poster-bff/internal/domain"
	"github.com/tbourn/go-poster-bff/internal/upstream"
)

// --- fail-closed: no session means 401 and zero upstream traffic ---

func TestCredits_NoSession_401_NoUpstreamCall(t *testing.T) {
	up := &stubUpstream{}
	r := newAPI(up, nil)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/credits", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["code"] != ErrCodeUnauthorized {
		t.Fatalf("code = %v", body["code"])
	}
	if up.callCount() != 0 {
		t.Fatalf("upstream calls = %d, want 0", up.callCount())
	}
}

func TestPostGenerate_NoSession_401_NoUpstreamCall(t *testing.T) {
	up := &stubUpstream{}
	r := newAPI(up, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	if w.Code != http.StatusUnauthorized || up.callCount() != 0 {
		t.Fatalf("status = %d, upstream calls = %d", w.Code, up.callCount())
	}
}

// --- credential precedence: access token wins, id token is fallback ---

func TestCredits_BearerPrecedence(t *testing.T) {
	up := &stubUpstream{}
	r := newAPI(up, &domain.Principal{Subject: "u", AccessToken: "at", IDToken: "idt"})
	serve(r, httptest.NewRequest(http.MethodGet, "/api/credits", nil))
	if got := up.lastCall(t).Bearer; got != "at" {
		t.Fatalf("bearer = %q, want access token", got)
	}

	up2 := &stubUpstream{}
	r2 := newAPI(up2, &domain.Principal{Subject: "u", IDToken: "idt"})
	serve(r2, httptest.NewRequest(http.MethodGet, "/api/credits", nil))
	if got := up2.lastCall(t).Bearer; got != "idt" {
		t.Fatalf("bearer = %q, want id token fallback", got)
	}
}

// --- passthrough fidelity ---

func TestCredits_RelaysUpstreamVerbatim(t *testing.T) {
	up := &stubUpstream{
		forward: func(call forwardCall) (*upstream.Reply, error) {
			return &upstream.Reply{
				Status:      http.StatusTeapot,
				Body:        []byte(`{"x":1}`),
				ContentType: "application/vnd.custom+json",
			}, nil
		},
	}
	r := newAPI(up, authedPrincipal())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/credits", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != `{"x":1}` {
		t.Fatalf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.custom+json" {
		t.Fatalf("content-type = %q", ct)
	}
}

func TestGetGenerate_SameRelayAsCredits(t *testing.T) {
	up := &stubUpstream{}
	r := newAPI(up, authedPrincipal())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/generate", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	call := up.lastCall(t)
	if call.Method != http.MethodGet || call.SubPath != "" {
		t.Fatalf("call = %+v, want GET app root", call)
	}
}

// --- 402 relay: credits exhaustion passes through untouched ---

func TestPostGenerate_Relays402Verbatim(t *testing.T) {
	upBody := `{"error":"Insufficient credits","credits_remaining":0}`
	up := &stubUpstream{
		forward: func(call forwardCall) (*upstream.Reply, error) {
			return &upstream.Reply{Status: http.StatusPaymentRequired, Body: []byte(upBody), ContentType: "application/json"}, nil
		},
	}
	r := newAPI(up, authedPrincipal())

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"a poster"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != upBody {
		t.Fatalf("body = %q", w.Body.String())
	}
}

// --- local validation precedes forwarding ---

func TestPostGenerate_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing prompt", `{"aspect_ratio":"1:1"}`},
		{"blank prompt", `{"prompt":"   "}`},
		{"prompt too long", `{"prompt":"` + strings.Repeat("a", 1001) + `"}`},
		{"bad aspect ratio", `{"prompt":"x","aspect_ratio":"2:1"}`},
		{"bad output format", `{"prompt":"x","output_format":"gif"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &stubUpstream{}
			r := newAPI(up, authedPrincipal())
			req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := serve(r, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if up.callCount() != 0 {
				t.Fatalf("upstream calls = %d, want 0", up.callCount())
			}
		})
	}
}

func TestPostGenerate_ForwardsCanonicalPayload(t *testing.T) {
	up := &stubUpstream{}
	r := newAPI(up, authedPrincipal())

	in := `{"prompt":"  a noir skyline  ","aspect_ratio":"16:9","output_format":"png","junk":"dropped"}`
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(in))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	call := up.lastCall(t)
	if call.Method != http.MethodPost || call.SubPath != "" || call.ContentType != "application/json" {
		t.Fatalf("call = %+v", call)
	}
	var sent domain.GenerateRequest
	if err := json.Unmarshal(call.Body, &sent); err != nil {
		t.Fatalf("decode forwarded body: %v", err)
	}
	if sent.Prompt != "a noir skyline" || sent.AspectRatio != "16:9" || sent.OutputFormat != "png" {
		t.Fatalf("forwarded = %+v", sent)
	}
	if bytes.Contains(call.Body, []byte("junk")) {
		t.Fatalf("unknown fields must not be forwarded: %s", call.Body)
	}
}

// --- transport failure maps to 502 ---

func TestCredits_Unreachable502(t *testing.T) {
	up := &stubUpstream{
		forward: func(call forwardCall) (*upstream.Reply, error) {
			return nil, upstream.ErrUnreachable
		},
	}
	r := newAPI(up, authedPrincipal())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/credits", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["code"] != ErrCodeBadGateway {
		t.Fatalf("code = %v", body["code"])
	}
}
