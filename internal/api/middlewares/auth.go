package middlewares

import (
	"net/http"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/models"
	"msgboard/internal/auth"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthRequired authenticates the request from its session cookies. Every
// failure gets the same 401 body.
func AuthRequired(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authenticate(c, services)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			models.Abort(c, models.ErrUnauthorized())
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// WebAuth is AuthRequired for pages: failures redirect to the login page.
func WebAuth(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authenticate(c, services)
		if err != nil {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by AuthRequired or WebAuth.
func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func authenticate(c *gin.Context, services interfaces.Services) (auth.Identity, error) {
	// A missing cookie reads as "", which the manager rejects as missing.
	token, _ := c.Cookie(models.CookieAccessToken)
	timezone, _ := c.Cookie(models.CookieTimezone)
	return services.SessionManager().Authenticate(token, timezone)
}

func setIdentity(c *gin.Context, id auth.Identity) {
	c.Set(identityKey, id)
	c.Set("user_id", id.Subject)
	c.Set("user_timezone", id.Timezone)
}
