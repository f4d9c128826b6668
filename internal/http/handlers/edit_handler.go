// Poster edit HTTP handler.
//
// POST /api/edit accepts a multipart upload (source image + prompt + optional
// tuning fields), validates everything locally BEFORE any upstream traffic,
// and forwards a JSON payload with the image base64-encoded. Rejecting bad
// uploads here avoids burning upstream credits on requests that would fail
// anyway.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/domain"
)

// PostEdit godoc
// @ID          postEdit
// @Summary     Edit an existing poster
// @Description Validates the multipart upload (MIME allow-list, size cap,
// @Description  prompt length, strength clamped to [0,1]) and relays the edit
// @Description  request as JSON with the image base64-encoded.
// @Tags        Generate
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       image            formData  file    true   "Source image (png, jpeg, or webp)"
// @Param       prompt           formData  string  true   "Edit instruction"
// @Param       strength         formData  number  false  "Edit strength, clamped to [0,1]"
// @Param       seed             formData  number  false  "Deterministic seed"
// @Param       output_format    formData  string  false  "png, jpeg, or webp"
// @Param       negative_prompt  formData  string  false  "Traits to avoid (truncated to cap)"
//
// @Success     200  {object}  map[string]any          "Upstream payload (verbatim)"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "No session"
// @Failure     402  {object}  map[string]any          "Credits exhausted (upstream body)"
// @Failure     502  {object}  handlers.ErrorResponse  "Upstream unreachable"
// @Router      /edit [post]
func (h *Handlers) PostEdit(c *gin.Context) {
	bearer, authed := h.bearer(c)
	if !authed {
		return
	}

	prompt := strings.TrimSpace(c.PostForm("prompt"))
	if prompt == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt is required")
		return
	}
	if utf8.RuneCountInString(prompt) > h.limits.EditMaxPromptChars {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt too long")
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image file is required")
		return
	}
	if fh.Size > h.limits.EditMaxImageBytes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image exceeds size limit")
		return
	}
	mime := fh.Header.Get("Content-Type")
	if _, ok := domain.AllowedImageMIME[mime]; !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unsupported image type")
		return
	}

	payload := domain.EditPayload{Prompt: prompt}

	if raw := strings.TrimSpace(c.PostForm("strength")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "strength must be numeric")
			return
		}
		f = clamp01(f)
		payload.Strength = &f
	}
	if raw := strings.TrimSpace(c.PostForm("seed")); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "seed must be numeric")
			return
		}
		payload.Seed = &f
	}
	if of := strings.TrimSpace(c.PostForm("output_format")); of != "" {
		if _, ok := domain.AllowedOutputFormats[of]; !ok {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unsupported output_format")
			return
		}
		payload.OutputFormat = of
	}
	if np := strings.TrimSpace(c.PostForm("negative_prompt")); np != "" {
		payload.NegativePrompt = truncateRunes(np, h.limits.EditMaxNegPromptChars)
	}

	// All local checks passed; only now read the upload.
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image upload")
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable image upload")
		return
	}
	payload.Image = base64.StdEncoding.EncodeToString(raw)

	body, err := json.Marshal(payload)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "encode payload")
		return
	}

	reply := h.forwardOrFail(c, http.MethodPost, "/edit", nil, body, "application/json", bearer)
	if reply == nil {
		return
	}
	relay(c, reply)
}

// clamp01 bounds a float to the [0,1] range the upstream accepts for strength.
func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
