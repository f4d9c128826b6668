package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-poster-bff/internal/config"
	"github.com/tbourn/go-poster-bff/internal/domain"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.UpstreamConfig{
		BaseURL:        baseURL,
		AppPath:        "/moviePosterImageGenerator",
		Timeout:        2 * time.Second,
		RetryGET:       false,
		PageSize:       50,
		MaxLookupPages: 10,
	}, nil)
}

// --- Forward: verbatim relay ---

func TestForward_RelaysStatusBodyContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/moviePosterImageGenerator" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/vnd.custom+json")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, `{"x":1}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Forward(context.Background(), http.MethodGet, "", nil, nil, "", "tok")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if reply.Status != http.StatusTeapot {
		t.Fatalf("status = %d", reply.Status)
	}
	if string(reply.Body) != `{"x":1}` {
		t.Fatalf("body = %q", reply.Body)
	}
	if reply.ContentType != "application/vnd.custom+json" {
		t.Fatalf("content-type = %q", reply.ContentType)
	}
	if reply.OK() {
		t.Fatalf("418 must not be OK")
	}
}

func TestForward_DefaultsContentTypeToJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Suppress Go's automatic content-type sniffing header.
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	reply, err := c.Forward(context.Background(), http.MethodGet, "", nil, nil, "", "tok")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if reply.ContentType != "application/json" {
		t.Fatalf("content-type default = %q", reply.ContentType)
	}
}

func TestForward_QueryAndBodyForwarded(t *testing.T) {
	var gotQuery, gotBody, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	q := url.Values{"limit": {"50"}}
	_, err := c.Forward(context.Background(), http.MethodPost, "/edit", q, []byte(`{"a":1}`), "application/json", "tok")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if gotQuery != "limit=50" || gotBody != `{"a":1}` || gotCT != "application/json" {
		t.Fatalf("forwarded query=%q body=%q ct=%q", gotQuery, gotBody, gotCT)
	}
}

func TestForward_TransportFailureIsUnreachable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1") // nothing listens here
	_, err := c.Forward(context.Background(), http.MethodGet, "", nil, nil, "", "tok")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("want ErrUnreachable, got %v", err)
	}
}

// --- Retry policy: GETs once, writes never ---

func TestForward_RetriesGETOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			// Kill the connection mid-flight to force a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatalf("recorder not hijackable")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{
		BaseURL:        srv.URL,
		AppPath:        "/moviePosterImageGenerator",
		Timeout:        2 * time.Second,
		RetryGET:       true,
		PageSize:       50,
		MaxLookupPages: 10,
	}, nil)

	reply, err := c.Forward(context.Background(), http.MethodGet, "", nil, nil, "", "tok")
	if err != nil {
		t.Fatalf("forward after retry: %v", err)
	}
	if reply.Status != http.StatusOK {
		t.Fatalf("status = %d", reply.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestForward_NeverRetriesPOST(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient(config.UpstreamConfig{
		BaseURL:        srv.URL,
		AppPath:        "/moviePosterImageGenerator",
		Timeout:        2 * time.Second,
		RetryGET:       true, // retry enabled, but only for GET
		PageSize:       50,
		MaxLookupPages: 10,
	}, nil)

	_, err := c.Forward(context.Background(), http.MethodPost, "", nil, []byte(`{}`), "application/json", "tok")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("want ErrUnreachable, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("POST calls = %d, want 1 (no retry)", got)
	}
}

// --- Paginated lookup ---

// historyStub serves pages of 50 items each; item sort keys are "sk-<n>".
func historyStub(t *testing.T, pages int, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/moviePosterImageGenerator/history" {
			t.Errorf("path = %q", r.URL.Path)
		}
		page := 0
		if cur := r.URL.Query().Get("cursor"); cur != "" {
			fmt.Sscanf(cur, "page-%d", &page)
		}
		var pg domain.HistoryPage
		for i := 0; i < 50; i++ {
			pg.Items = append(pg.Items, domain.HistoryRecord{SK: fmt.Sprintf("sk-%d", page*50+i)})
		}
		if page+1 < pages {
			pg.NextCursor = fmt.Sprintf("page-%d", page+1)
		}
		json.NewEncoder(w).Encode(pg)
	}))
}

func TestFindBySortKey_FoundOnThirdPage(t *testing.T) {
	var calls int32
	srv := historyStub(t, 3, &calls)
	defer srv.Close()

	c := newTestClient(srv.URL)
	rec, err := c.FindBySortKey(context.Background(), "tok", "sk-120") // index 120 → page 3
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec == nil || rec.SK != "sk-120" {
		t.Fatalf("record = %+v", rec)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("page fetches = %d, want exactly 3", got)
	}
}

func TestFindBySortKey_StopsAtPageCap(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// Never exhausts: always returns a fresh cursor.
		json.NewEncoder(w).Encode(domain.HistoryPage{
			Items:      []domain.HistoryRecord{{SK: "other"}},
			NextCursor: "more",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	rec, err := c.FindBySortKey(context.Background(), "tok", "missing")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected absent, got %+v", rec)
	}
	if got := atomic.LoadInt32(&calls); got != 10 {
		t.Fatalf("page fetches = %d, want page cap 10", got)
	}
}

func TestFindBySortKey_ExhaustedCursorReturnsAbsent(t *testing.T) {
	var calls int32
	srv := historyStub(t, 2, &calls)
	defer srv.Close()

	c := newTestClient(srv.URL)
	rec, err := c.FindBySortKey(context.Background(), "tok", "nope")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected absent, got %+v", rec)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("page fetches = %d, want 2 (cursor exhausted)", got)
	}
}

func TestFindBySortKey_UpstreamErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FindBySortKey(context.Background(), "tok", "sk")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("want StatusError 403, got %v", err)
	}
}

// --- Binary fetch ---

func TestFetchImage_SuccessAndFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("PNGBYTES"))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	b, ct, err := c.FetchImage(context.Background(), srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(b) != "PNGBYTES" || ct != "image/png" {
		t.Fatalf("fetch got %q ct=%q", b, ct)
	}

	_, _, err = c.FetchImage(context.Background(), srv.URL+"/expired")
	if !errors.Is(err, ErrImageFetch) {
		t.Fatalf("want ErrImageFetch, got %v", err)
	}
}
