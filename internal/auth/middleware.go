// ABOUTME: Echo middleware enforcing the mesh shared secret on API requests
// ABOUTME: Rejects bad or missing credentials without touching any state

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HeaderAPIKey is the request header carrying the shared secret.
const HeaderAPIKey = "X-API-Key"

// RequireSecret returns middleware that rejects any request whose X-API-Key
// header does not match the configured shared secret. A Bearer Authorization
// header is accepted as an equivalent carrier. Comparison is constant time.
func RequireSecret(secret string) echo.MiddlewareFunc {
	want := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := credentialFrom(c.Request())
			if got == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing credential")
			}
			if subtle.ConstantTimeCompare(want, []byte(got)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid credential")
			}
			return next(c)
		}
	}
}

// credentialFrom pulls the presented secret from X-API-Key or a Bearer header.
func credentialFrom(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}
