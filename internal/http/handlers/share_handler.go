// Share HTTP handlers.
//
// This file exposes the share-link surface:
//   - POST /api/share/create  (mint a share link for an owned record)
//   - GET  /api/share/:id     (public view of a shared poster, no session)
//
// Share links are created and stored upstream; this layer only validates the
// shapes it promises its clients and narrows the public payload to the fields
// the share page renders.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/domain"
)

// CreateShare godoc
// @ID          createShare
// @Summary     Create a share link
// @Description Asks the upstream to mint a share link for one of the caller's
// @Description  records. A success answer must carry a share id; the share URL
// @Description  is defaulted to /share/<id> when the upstream omits it.
// @Tags        Share
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.ShareCreateRequest  true  "Record sort key and optional TTL"
//
// @Success     200  {object}  domain.ShareLink
// @Failure     400  {object}  handlers.ErrorResponse  "Missing sort key"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable or malformed answer"
// @Router      /share/create [post]
func (h *Handlers) CreateShare(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}

	var req domain.ShareCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SK) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sk is required")
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "encode payload")
		return
	}

	reply := h.forwardOrFail(c, http.MethodPost, "/share", nil, body, "application/json", bearer)
	if reply == nil {
		return
	}
	if !reply.OK() {
		fail(c, reply.Status, ErrCodeUpstream, "failed to create share link")
		return
	}

	var link domain.ShareLink
	if err := json.Unmarshal(reply.Body, &link); err != nil || link.ShareID == "" {
		fail(c, http.StatusBadGateway, ErrCodeBadGateway, "upstream returned no share id")
		return
	}
	if link.ShareURL == "" {
		link.ShareURL = "/share/" + link.ShareID
	}
	ok(c, http.StatusOK, link)
}

// GetShared godoc
// @ID          getShared
// @Summary     View a shared poster (public)
// @Description Resolves a share id without any session; the response is
// @Description  narrowed to the fields the share page renders. A success
// @Description  answer without an image URL is treated as an upstream fault.
// @Tags        Share
// @Produce     json
//
// @Param       id  path  string  true  "Share id"
//
// @Success     200  {object}  domain.SharedPoster
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown or expired share link"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable or malformed answer"
// @Router      /share/{id} [get]
func (h *Handlers) GetShared(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "share id is required")
		return
	}

	// Public route: the upstream share lookup takes no bearer.
	reply := h.forwardOrFail(c, http.MethodGet, "/share/"+id, nil, nil, "", "")
	if reply == nil {
		return
	}
	if reply.Status == http.StatusNotFound {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "share link not found")
		return
	}
	if !reply.OK() {
		fail(c, reply.Status, ErrCodeUpstream, "share lookup failed")
		return
	}

	var rec struct {
		Prompt         *string `json:"prompt"`
		CreatedAt      *string `json:"createdAt"`
		PresignedURL   string  `json:"presigned_url"`
		PublicImageURL string  `json:"public_image_url"`
	}
	if err := json.Unmarshal(reply.Body, &rec); err != nil {
		fail(c, http.StatusBadGateway, ErrCodeBadGateway, "malformed share payload")
		return
	}
	imageURL := rec.PresignedURL
	if imageURL == "" {
		imageURL = rec.PublicImageURL
	}
	if imageURL == "" {
		fail(c, http.StatusBadGateway, ErrCodeBadGateway, "share record has no image")
		return
	}

	ok(c, http.StatusOK, domain.SharedPoster{
		Prompt:       rec.Prompt,
		CreatedAt:    rec.CreatedAt,
		PresignedURL: imageURL,
	})
}
