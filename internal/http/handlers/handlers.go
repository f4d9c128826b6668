// Handler wiring for the poster API.
//
// Handlers are transport-thin: they resolve the caller's session, validate
// input locally where the upstream contract demands it, and otherwise relay
// requests and responses verbatim so the upstream image-generation API stays
// the single source of truth for payload shapes.
package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/tbourn/go-poster-bff/internal/config"
	"github.com/tbourn/go-poster-bff/internal/domain"
	"github.com/tbourn/go-poster-bff/internal/http/middleware"
	"github.com/tbourn/go-poster-bff/internal/session"
	"github.com/tbourn/go-poster-bff/internal/upstream"
)

//
// Upstream contract (context-aware)
//

// Upstream defines the operations the handlers need from the upstream API
// client. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type Upstream interface {
	// Forward relays one request verbatim with the bearer attached.
	Forward(ctx context.Context, method, subPath string, query url.Values, body []byte, contentType, bearer string) (*upstream.Reply, error)
	// FindBySortKey locates one history record by walking the paginated listing.
	FindBySortKey(ctx context.Context, bearer, sk string) (*domain.HistoryRecord, error)
	// FetchImage pulls the bytes behind a presigned image URL.
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the poster API. It depends on the
// Upstream interface and the session manager to keep transport concerns
// separate from proxy mechanics.
type Handlers struct {
	up       Upstream
	sessions *session.Manager
	limits   config.LimitsConfig
	auth     config.AuthConfig

	// oauth is nil when AUTH_ENABLED is off; the auth endpoints then answer 404.
	oauth *oauth2.Config
}

// New constructs a Handlers instance bound to the given collaborators. The
// OIDC endpoints follow the issuer's hosted-UI layout (/oauth2/authorize,
// /oauth2/token).
func New(up Upstream, sessions *session.Manager, limits config.LimitsConfig, auth config.AuthConfig) *Handlers {
	h := &Handlers{up: up, sessions: sessions, limits: limits, auth: auth}
	if auth.Enabled {
		h.oauth = &oauth2.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			RedirectURL:  auth.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  auth.Issuer + "/oauth2/authorize",
				TokenURL: auth.Issuer + "/oauth2/token",
			},
		}
	}
	return h
}

// bearer resolves the request principal and selects the upstream credential.
// When no usable credential exists it writes the 401 envelope and reports
// ok=false; the caller must return immediately. No upstream call is ever made
// for an unauthenticated request.
func (h *Handlers) bearer(c *gin.Context) (string, bool) {
	b, ok := session.SelectBearer(middleware.PrincipalFrom(c))
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return "", false
	}
	return b, true
}

// forwardOrFail performs an upstream relay and maps transport failures to 502.
// It returns nil when the response has already been written.
func (h *Handlers) forwardOrFail(c *gin.Context, method, subPath string, query url.Values, body []byte, contentType, bearer string) *upstream.Reply {
	reply, err := h.up.Forward(c.Request.Context(), method, subPath, query, body, contentType, bearer)
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeBadGateway, "upstream unreachable")
		return nil
	}
	return reply
}
