// Package domain defines the request-scoped models exchanged with the
// upstream image-generation API. Nothing in this package is persisted: every
// type is a transient projection of data owned by the upstream system,
// reconstructed per request and discarded with the response.
package domain

import (
	"strings"
	"time"
)

// Principal is the authenticated caller for one request, rebuilt from the
// signed session cookie. It is never stored server-side and is immutable
// after construction.
//
// Fields:
//   - Subject: stable user identifier from the identity provider.
//   - AccessToken: the IdP access credential; preferred bearer for upstream calls.
//   - IDToken: the IdP identity credential; fallback bearer.
//   - Groups: role/group claims (e.g. "admin"), order preserved.
type Principal struct {
	Subject     string
	AccessToken string
	IDToken     string
	Groups      []string
}

// IsAdmin reports whether the principal carries the admin group claim.
func (p *Principal) IsAdmin() bool {
	if p == nil {
		return false
	}
	for _, g := range p.Groups {
		if g == "admin" {
			return true
		}
	}
	return false
}

// HistoryRecord is one generation result as reported by the upstream history
// endpoint. The sort key doubles as the record's public id in this layer.
// PresignedURL is time-limited; it must be consumed promptly server-side
// (see the download handler) rather than handed to clients for later use.
type HistoryRecord struct {
	PK           string `json:"pk,omitempty"`
	SK           string `json:"sk"`
	Status       string `json:"status,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	PresignedURL string `json:"presigned_url,omitempty"`
	Featured     bool   `json:"featured,omitempty"`
}

// StatusSuccess is the upstream status marking a completed, downloadable record.
const StatusSuccess = "SUCCESS"

// Downloadable reports whether the record can be served as a binary download:
// generation succeeded and an image URL is present.
func (r *HistoryRecord) Downloadable() bool {
	return strings.EqualFold(r.Status, StatusSuccess) && r.PresignedURL != ""
}

// DownloadFilename derives a deterministic, filesystem-safe attachment name
// from the record's creation timestamp and output format, e.g.
// "poster-2026-01-29_044152Z.jpg". Millisecond precision is dropped, colons
// removed, and "jpeg" normalized to the "jpg" extension. Records without a
// createdAt fall back to the supplied now.
func (r *HistoryRecord) DownloadFilename(now time.Time) string {
	ext := strings.ToLower(r.OutputFormat)
	if ext == "" {
		ext = "jpg"
	}
	if ext == "jpeg" {
		ext = "jpg"
	}

	iso := r.CreatedAt
	if iso == "" {
		iso = now.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	cleaned := iso
	if i := strings.Index(cleaned, "."); i >= 0 && strings.HasSuffix(cleaned, "Z") {
		cleaned = cleaned[:i] + "Z"
	}
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.Replace(cleaned, "T", "_", 1)
	cleaned = strings.Replace(cleaned, "+0000", "Z", 1)

	return "poster-" + cleaned + "." + ext
}

// HistoryPage is one page of the upstream history listing.
type HistoryPage struct {
	Items      []HistoryRecord `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// ShareLink is the upstream's answer to a share-create request. It is created
// on demand and never stored by this layer.
type ShareLink struct {
	ShareID  string `json:"shareId"`
	ShareURL string `json:"shareUrl"`
}

// SharedPoster is the public projection of a shared record, narrowed to the
// fields the share page renders.
type SharedPoster struct {
	Prompt       *string `json:"prompt"`
	CreatedAt    *string `json:"createdAt"`
	PresignedURL string  `json:"presigned_url"`
}

// GenerateRequest is the locally-validated payload for a generation request.
// The success-path response body is relayed verbatim from upstream, so only
// the inbound fields are typed here.
type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
}

// EditPayload is the JSON body forwarded to the upstream edit endpoint after
// the multipart upload has been validated and the image base64-encoded.
// Optional numeric fields use pointers so absent and zero are distinguishable
// on the wire.
type EditPayload struct {
	Prompt         string   `json:"prompt"`
	Image          string   `json:"image"`
	Strength       *float64 `json:"strength,omitempty"`
	Seed           *float64 `json:"seed,omitempty"`
	OutputFormat   string   `json:"output_format,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
}

// SortKeyRequest is the common body shape for history actions that target a
// single record by its sort key (delete, pin-as-featured).
type SortKeyRequest struct {
	SK string `json:"sk"`
}

// ShareCreateRequest asks the upstream to mint a share link for a record.
type ShareCreateRequest struct {
	SK               string `json:"sk"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds"`
}

// Allowed enumerations, mirrored from the upstream contract.
var (
	// AllowedAspectRatios are the aspect ratios the upstream accepts.
	AllowedAspectRatios = map[string]struct{}{
		"1:1": {}, "16:9": {}, "9:16": {}, "4:3": {}, "3:4": {},
	}
	// AllowedOutputFormats are the output formats the upstream accepts.
	AllowedOutputFormats = map[string]struct{}{
		"png": {}, "jpeg": {}, "webp": {},
	}
	// AllowedImageMIME is the upload allow-list for the edit endpoint.
	AllowedImageMIME = map[string]struct{}{
		"image/png": {}, "image/jpeg": {}, "image/webp": {},
	}
)
