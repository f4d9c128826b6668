// Generation and credits HTTP handlers.
//
// This file exposes the endpoints that touch the upstream account root:
//   - GET  /api/credits   (account/credits lookup)
//   - GET  /api/generate  (same account relay; kept for clients that poll it)
//   - POST /api/generate  (start a generation)
//
// Success and upstream-error bodies are relayed verbatim. In particular a 402
// (credits exhausted) passes through untouched so clients can react to the
// upstream's own payload.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/domain"
)

// GetCredits godoc
// @ID          getCredits
// @Summary     Get account credits
// @Description Relays the upstream account lookup for the signed-in user.
// @Tags        Generate
// @Produce     json
//
// @Success     200  {object}  map[string]any          "Upstream account payload (verbatim)"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /credits [get]
func (h *Handlers) GetCredits(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}
	reply := h.forwardOrFail(c, http.MethodGet, "", nil, nil, "", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}

// GetGenerate godoc
// @ID          getGenerate
// @Summary     Get account state (generate view)
// @Description Same upstream account relay as /credits; retained because the
// @Description  web client polls both routes.
// @Tags        Generate
// @Produce     json
//
// @Success     200  {object}  map[string]any          "Upstream account payload (verbatim)"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /generate [get]
func (h *Handlers) GetGenerate(c *gin.Context) {
	h.GetCredits(c)
}

// PostGenerate godoc
// @ID          postGenerate
// @Summary     Generate a poster
// @Description Validates the prompt and enumerations locally, then relays the
// @Description  generation request. The upstream answer (including 402 when
// @Description  credits are exhausted) is returned verbatim.
// @Tags        Generate
// @Accept      json
// @Produce     json
//
// @Param       body  body  domain.GenerateRequest  true  "Generation payload"
//
// @Success     200  {object}  map[string]any          "Upstream payload (verbatim)"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     402  {object}  map[string]any          "Credits exhausted (upstream body)"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /generate [post]
func (h *Handlers) PostGenerate(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}

	var req domain.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt is required")
		return
	}
	if utf8.RuneCountInString(req.Prompt) > h.limits.MaxPromptChars {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt too long")
		return
	}
	if req.AspectRatio != "" {
		if _, ok := domain.AllowedAspectRatios[req.AspectRatio]; !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unsupported aspect_ratio")
			return
		}
	}
	if req.OutputFormat != "" {
		if _, ok := domain.AllowedOutputFormats[req.OutputFormat]; !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unsupported output_format")
			return
		}
	}

	// Re-marshal the validated payload so only known fields go upstream.
	body, err := json.Marshal(req)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "encode payload")
		return
	}

	reply := h.forwardOrFail(c, http.MethodPost, "", nil, body, "application/json", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}
