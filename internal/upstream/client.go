// Package upstream implements the client for the external image-generation
// API. It has three jobs:
//
//   - Forward: relay a request verbatim (status, body, content-type) with the
//     caller's bearer credential attached, so the upstream stays the single
//     source of truth for response shapes.
//   - FindBySortKey: locate one history record by its sort key by walking the
//     paginated history listing with a hard page cap.
//   - FetchImage: pull bytes from a time-limited external image URL so the
//     browser never touches third-party storage directly.
//
// Every call carries an explicit timeout. Idempotent GETs get a single
// bounded retry on transport failure; POST/DELETE are never retried because a
// duplicate generation is a duplicate charge.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-poster-bff/internal/config"
	"github.com/tbourn/go-poster-bff/internal/domain"
)

// ErrUnreachable marks a transport-level failure talking to the upstream API
// (DNS, connect, TLS, timeout). Handlers map it to 502 so callers can tell a
// dead upstream apart from an upstream that answered with an error status.
var ErrUnreachable = errors.New("upstream unreachable")

// ErrImageFetch marks a non-2xx answer from the external image host during a
// binary download. Also mapped to 502.
var ErrImageFetch = errors.New("image fetch failed")

// StatusError reports a non-2xx upstream answer in a flow that cannot relay
// it verbatim (e.g. a history page fetch inside the lookup loop).
type StatusError struct {
	Code int
	Body []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.Code)
}

// Reply is a verbatim capture of an upstream response: status unchanged, body
// unparsed, content-type defaulted to application/json when omitted.
type Reply struct {
	Status      int
	Body        []byte
	ContentType string
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Reply) OK() bool { return r.Status >= 200 && r.Status < 300 }

var (
	// upstreamReqs counts upstream calls by method, sub-path, and outcome.
	upstreamReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests forwarded to the upstream API.",
		},
		[]string{"method", "path", "status"},
	)

	// upstreamLat records upstream call duration in seconds.
	upstreamLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of upstream API calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(upstreamReqs, upstreamLat)
}

// Client talks to the upstream API. Safe for concurrent use; it keeps no
// per-request state.
type Client struct {
	baseURL        string
	appPath        string
	httpc          *http.Client
	timeout        time.Duration
	retryGET       bool
	pageSize       int
	maxLookupPages int
}

// NewClient builds a Client from validated configuration. The supplied
// http.Client may be nil, in which case http.DefaultTransport semantics apply;
// per-call deadlines come from cfg.Timeout either way.
func NewClient(cfg config.UpstreamConfig, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		appPath:        cfg.AppPath,
		httpc:          httpc,
		timeout:        cfg.Timeout,
		retryGET:       cfg.RetryGET,
		pageSize:       cfg.PageSize,
		maxLookupPages: cfg.MaxLookupPages,
	}
}

// AppURL joins the base URL, app path, and a sub-path ("" for the app root).
func (c *Client) AppURL(subPath string) string {
	return c.baseURL + c.appPath + subPath
}

// Forward relays one request to the upstream API with the bearer attached and
// captures the answer verbatim. subPath is relative to the app mount (e.g.
// "", "/edit", "/history"); query may be nil; body may be nil for bodyless
// methods. The caller is responsible for ensuring a bearer is present;
// Forward does not fail closed itself because the public share endpoint
// legitimately calls without one.
func (c *Client) Forward(ctx context.Context, method, subPath string, query url.Values, body []byte, contentType, bearer string) (*Reply, error) {
	u := c.AppURL(subPath)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempts := 1
	if method == http.MethodGet && c.retryGET {
		attempts = 2
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		reply, err := c.do(ctx, method, subPath, u, body, contentType, bearer)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break // inbound request gone; don't burn a retry
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

// do performs a single upstream attempt with the per-call timeout applied.
func (c *Client) do(ctx context.Context, method, subPath, fullURL string, body []byte, contentType, bearer string) (*Reply, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(cctx, method, fullURL, rdr)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	upstreamLat.WithLabelValues(method, subPath).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamReqs.WithLabelValues(method, subPath, "transport_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamReqs.WithLabelValues(method, subPath, "read_error").Inc()
		return nil, err
	}
	upstreamReqs.WithLabelValues(method, subPath, strconv.Itoa(resp.StatusCode)).Inc()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &Reply{Status: resp.StatusCode, Body: raw, ContentType: ct}, nil
}

// FindBySortKey walks the upstream history listing page by page looking for
// the record whose sort key matches sk. Pages are fetched sequentially, each
// scanned linearly, and the walk stops on the first match, when the cursor
// empties, or after the configured page cap. The cap is a safety bound
// against a misbehaving upstream, not a correctness mechanism. A nil record
// with a nil error means "not found".
func (c *Client) FindBySortKey(ctx context.Context, bearer, sk string) (*domain.HistoryRecord, error) {
	cursor := ""
	for page := 0; page < c.maxLookupPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		reply, err := c.Forward(ctx, http.MethodGet, "/history", q, nil, "", bearer)
		if err != nil {
			return nil, err
		}
		if !reply.OK() {
			return nil, &StatusError{Code: reply.Status, Body: reply.Body}
		}

		var pg domain.HistoryPage
		if err := json.Unmarshal(reply.Body, &pg); err != nil {
			return nil, fmt.Errorf("decode history page: %w", err)
		}
		for i := range pg.Items {
			if pg.Items[i].SK == sk {
				return &pg.Items[i], nil
			}
		}

		cursor = pg.NextCursor
		if cursor == "" {
			break
		}
	}
	return nil, nil
}

// FetchImage retrieves the bytes behind an external (typically presigned)
// image URL. Returns the raw bytes and the host's declared content type; a
// non-2xx answer is reported as ErrImageFetch with the status attached.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d", ErrImageFetch, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return raw, resp.Header.Get("Content-Type"), nil
}
