// History HTTP handlers.
//
// This file exposes the endpoints backed by the upstream history listing:
//   - GET    /api/history           (paginated listing relay)
//   - DELETE /api/history/delete    (remove one record by sort key)
//   - POST   /api/history/featured  (pin one record as featured)
//   - GET    /api/history/download  (binary passthrough of one poster)
//   - GET    /api/featured          (current featured record; degrades when anonymous)
//
// The download handler is the one endpoint that does more than relay: it
// locates the record via the paginated lookup, verifies it is downloadable,
// fetches the presigned image server-side, and streams the bytes back with a
// deterministic attachment filename.
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/domain"
	"github.com/tbourn/go-poster-bff/internal/http/middleware"
	"github.com/tbourn/go-poster-bff/internal/session"
	"github.com/tbourn/go-poster-bff/internal/upstream"
	"github.com/tbourn/go-poster-bff/internal/utils"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ListHistory godoc
// @ID          listHistory
// @Summary     List generation history (paginated)
// @Description Relays the upstream history listing. The limit is sanitized
// @Description  locally; the cursor is forwarded opaquely.
// @Tags        History
// @Produce     json
//
// @Param       limit   query  int     false  "Page size"  minimum(1) maximum(100) default(50)
// @Param       cursor  query  string  false  "Opaque pagination cursor"
//
// @Success     200  {object}  domain.HistoryPage
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(utils.ClampLimit(c.Query("limit"), defaultHistoryLimit, maxHistoryLimit)))
	if cur := c.Query("cursor"); cur != "" {
		q.Set("cursor", cur)
	}

	reply := h.forwardOrFail(c, http.MethodGet, "/history", q, nil, "", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}

// DeleteHistory godoc
// @ID          deleteHistory
// @Summary     Delete a history record
// @Description Relays the delete to the upstream; a 204 comes back bodyless.
// @Tags        History
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.SortKeyRequest  true  "Record sort key"
//
// @Success     204  {string}  string                  "Deleted"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing sort key"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /history/delete [delete]
func (h *Handlers) DeleteHistory(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}
	body, ok := h.sortKeyBody(c)
	if !ok {
		return
	}
	reply := h.forwardOrFail(c, http.MethodDelete, "/history", nil, body, "application/json", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}

// FeatureHistory godoc
// @ID          featureHistory
// @Summary     Pin a record as featured
// @Description Relays the pin request; the upstream owns the featured flag.
// @Tags        History
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.SortKeyRequest  true  "Record sort key"
//
// @Success     200  {object}  map[string]any          "Upstream payload (verbatim)"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing sort key"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /history/featured [post]
func (h *Handlers) FeatureHistory(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}
	body, ok := h.sortKeyBody(c)
	if !ok {
		return
	}
	reply := h.forwardOrFail(c, http.MethodPost, "/history/featured", nil, body, "application/json", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}

// sortKeyBody binds and validates the common {sk} body, re-marshaling it so
// only the known field goes upstream. It writes the 400 envelope on failure.
func (h *Handlers) sortKeyBody(c *gin.Context) ([]byte, bool) {
	var req domain.SortKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SK) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sk is required")
		return nil, false
	}
	return []byte(`{"sk":` + strconv.Quote(req.SK) + `}`), true
}

// Download godoc
// @ID          downloadPoster
// @Summary     Download a poster image
// @Description Locates the record by sort key via the paginated lookup,
// @Description  verifies it completed with an image URL, fetches the presigned
// @Description  image server-side, and streams the bytes back as an attachment
// @Description  with a deterministic filename.
// @Tags        History
// @Produce     octet-stream
//
// @Param       sk  query  string  true  "Record sort key"
//
// @Success     200  {file}    file                    "Image bytes"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing sk or record not downloadable"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream or image host failure"
// @Router      /history/download [get]
func (h *Handlers) Download(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}
	sk := strings.TrimSpace(c.Query("sk"))
	if sk == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sk is required")
		return
	}

	rec, err := h.up.FindBySortKey(c.Request.Context(), bearer, sk)
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) {
			fail(c, se.Code, ErrCodeUpstream, "history lookup failed")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeBadGateway, "upstream unreachable")
		return
	}
	if rec == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "record not found")
		return
	}
	if !rec.Downloadable() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "record is not downloadable")
		return
	}

	raw, ct, err := h.up.FetchImage(c.Request.Context(), rec.PresignedURL)
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeBadGateway, "image fetch failed")
		return
	}
	if ct == "" {
		ct = imageContentType(rec.OutputFormat)
	}

	filename := rec.DownloadFilename(time.Now())
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, ct, raw)
}

// imageContentType maps a record output format to a MIME type for responses
// where the image host did not declare one.
func imageContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// GetFeatured godoc
// @ID          getFeatured
// @Summary     Get the featured poster
// @Description Anonymous callers get a 200 with null fields instead of an
// @Description  error so the landing page renders without a session. Signed-in
// @Description  callers get the upstream answer verbatim (204 passes through
// @Description  bodyless).
// @Tags        History
// @Produce     json
//
// @Success     200  {object}  map[string]any          "Featured record, or nulls when anonymous"
// @Success     204  {string}  string                  "No featured record"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /featured [get]
func (h *Handlers) GetFeatured(c *gin.Context) {
	bearer, ok := session.SelectBearer(middleware.PrincipalFrom(c))
	if !ok {
		ok200NullFeatured(c)
		return
	}
	reply := h.forwardOrFail(c, http.MethodGet, "/featured", nil, nil, "", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}

// ok200NullFeatured is the anonymous degrade shape for the featured endpoint.
func ok200NullFeatured(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"presigned_url": nil, "sk": nil})
}
