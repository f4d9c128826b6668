// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file injects the resolved session principal into the request context.
// Resolution happens exactly once per request; handlers read the result via
// PrincipalFrom and decide individually how to treat an anonymous caller
// (most return 401, the featured endpoint degrades to a null payload, and the
// public share endpoint ignores the principal entirely).
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-poster-bff/internal/domain"
	"github.com/tbourn/go-poster-bff/internal/session"
)

const (
	// ctxKeyPrincipal is the Gin context key holding *domain.Principal.
	ctxKeyPrincipal = "principal"
	// ctxKeyUserID mirrors the principal subject for logging and rate limiting.
	ctxKeyUserID = "userID"
)

// SessionPrincipal resolves the session cookie and, when valid, stores the
// principal in the Gin context. An invalid or absent session stores nothing,
// so downstream code sees the same "no principal" state either way.
func SessionPrincipal(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p := m.Resolve(c.Request); p != nil {
			c.Set(ctxKeyPrincipal, p)
			if p.Subject != "" {
				c.Set(ctxKeyUserID, p.Subject)
			}
		}
		c.Next()
	}
}

// PrincipalFrom returns the request's resolved principal, or nil when the
// caller is anonymous. Callers must treat nil as unauthenticated.
func PrincipalFrom(c *gin.Context) *domain.Principal {
	if v, ok := c.Get(ctxKeyPrincipal); ok {
		if p, ok := v.(*domain.Principal); ok {
			return p
		}
	}
	return nil
}
