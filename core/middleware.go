package core

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// identityKey is the gin context key under which the gate stores the
// resolved Identity.
const identityKey = "identity"

// RequireAuth is the per-request authentication gate. It extracts the bearer
// token from the Authorization header, verifies it, resolves the subject to a
// full Identity, and attaches it to the context. Any failure short-circuits
// the request with one uniform 401; the specific cause (missing header, bad
// signature, expiry, unknown subject) appears only in the server log.
func RequireAuth(codec *TokenCodec, auth *AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			rejectUnauthenticated(c, "missing authorization header")
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			rejectUnauthenticated(c, "malformed authorization header")
			return
		}
		tokenString := strings.TrimSpace(header[len(bearerPrefix):])
		if tokenString == "" {
			rejectUnauthenticated(c, "empty bearer token")
			return
		}

		subject, err := codec.Verify(tokenString, time.Now())
		if err != nil {
			rejectUnauthenticated(c, err.Error())
			return
		}

		u, err := auth.CurrentIdentity(c.Request.Context(), subject)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				rejectUnauthenticated(c, "token subject no longer exists")
				return
			}
			log.Printf("auth gate: identity lookup failed: %v", err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "unexpected error")
			c.Abort()
			return
		}

		c.Set(identityKey, Identity{UserID: u.ID, Username: u.Username})
		c.Next()
	}
}

func rejectUnauthenticated(c *gin.Context, reason string) {
	log.Printf("auth gate: %s %s rejected: %s", c.Request.Method, c.Request.URL.Path, reason)
	respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	c.Abort()
}

// CurrentUser returns the Identity attached by RequireAuth. A protected
// handler running without one is a wiring bug, reported by the second return.
func CurrentUser(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// RateLimitMiddleware throttles a route by client IP using the shared redis
// window. A redis failure lets the request through: availability of login
// must not depend on the limiter.
func RateLimitMiddleware(limiter *LoginRateLimiter, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ratelimit:" + route + ":" + c.ClientIP()
		ok, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Printf("rate limiter unavailable, allowing request: %v", err)
			c.Next()
			return
		}
		if !ok {
			respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORSMiddleware validates Origin/Referer against the allowed list and sets
// CORS headers. Tokens travel in the Authorization header, so no credentials
// or cookies are involved.
func CORSMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}
