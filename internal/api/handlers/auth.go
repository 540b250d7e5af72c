package handlers

import (
	"errors"
	"net/http"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/models"
	"msgboard/internal/auth"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	loginFailedMessage = "Invalid username or password"
	htmlContentType    = "text/html; charset=utf-8"
)

// Login verifies the posted credentials and sets the session cookies. A
// failed login renders the same error fragment whatever went wrong.
func Login(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLoggerFromContext(c, services.GetLogger())

		var form models.LoginForm
		if err := c.ShouldBind(&form); err != nil {
			models.Abort(c, models.NewAPIError(models.ErrCodeInvalidRequest,
				"Invalid login request", http.StatusUnprocessableEntity))
			return
		}

		session, err := services.SessionManager().Login(c.Request.Context(), auth.LoginAttempt{
			Username: form.Username,
			Secret:   form.Password,
			Timezone: form.UserTimezone,
			ClientIP: c.ClientIP(),
		})
		if errors.Is(err, auth.ErrUnauthorized) {
			c.HTML(http.StatusOK, "login_error.html", gin.H{"error": loginFailedMessage})
			return
		}
		if err != nil {
			log.StructuredError(err, map[string]interface{}{"operation": "login"})
			models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Login failed", http.StatusInternalServerError))
			return
		}

		cfg := services.GetConfig().Auth
		setSessionCookie(c, cfg, models.CookieAccessToken, session.Access.Value, services.SessionManager().AccessTTL())
		setSessionCookie(c, cfg, models.CookieRefreshToken, session.Refresh.Value, services.SessionManager().RefreshTTL())
		setSessionCookie(c, cfg, models.CookieTimezone, form.UserTimezone, cfg.TimezoneCookieTTL)

		c.Header("HX-Redirect", "/msgs")
		c.Data(http.StatusOK, htmlContentType, []byte("<div>Login successful! Redirecting...</div>"))
	}
}

// RefreshToken replaces the access token cookie using the refresh token
// cookie. The refresh token is left as is.
func RefreshToken(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh, _ := c.Cookie(models.CookieRefreshToken)

		access, err := services.SessionManager().Refresh(refresh)
		if errors.Is(err, auth.ErrUnauthorized) {
			models.Abort(c, models.ErrUnauthorized())
			return
		}
		if err != nil {
			logger.GetLoggerFromContext(c, services.GetLogger()).StructuredError(err, map[string]interface{}{
				"operation": "refresh",
			})
			models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Refresh failed", http.StatusInternalServerError))
			return
		}

		setSessionCookie(c, services.GetConfig().Auth, models.CookieAccessToken, access.Value, services.SessionManager().AccessTTL())
		c.Data(http.StatusOK, htmlContentType, []byte("<div>Token refreshed</div>"))
	}
}

// Logout clears the session cookies and sends the client to the login page.
// Tokens already issued stay valid until they expire.
func Logout(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(models.CookieAccessToken)
		timezone, _ := c.Cookie(models.CookieTimezone)
		if token != "" {
			if id, err := services.SessionManager().Authenticate(token, timezone); err == nil {
				services.SessionManager().Logout(c.Request.Context(), id, c.ClientIP())
			}
		}

		clearSessionCookies(c, services.GetConfig().Auth)
		c.Redirect(http.StatusFound, "/")
	}
}
