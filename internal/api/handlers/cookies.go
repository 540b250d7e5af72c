package handlers

import (
	"net/http"
	"time"

	"msgboard/internal/api/models"
	"msgboard/pkg/config"

	"github.com/gin-gonic/gin"
)

func setSessionCookie(c *gin.Context, cfg config.AuthConfig, name, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, int(ttl/time.Second), "/", cfg.CookieDomain, cfg.CookieSecure, true)
}

func clearSessionCookies(c *gin.Context, cfg config.AuthConfig) {
	c.SetSameSite(http.SameSiteStrictMode)
	for _, name := range []string{models.CookieAccessToken, models.CookieRefreshToken, models.CookieTimezone} {
		c.SetCookie(name, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, true)
	}
}
