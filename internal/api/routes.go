package api

import (
	"fmt"

	"msgboard/internal/api/handlers"
	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/middlewares"
	"msgboard/internal/web"

	"github.com/gin-gonic/gin"
)

// RouteLimits are the rate limiters installed by SetupRoutes. A nil General
// limiter disables global limiting.
type RouteLimits struct {
	General *middlewares.RateLimiter
	Login   *middlewares.RateLimiter
}

// NewRouter builds an engine that only believes forwarding headers from the
// configured proxies, then installs the routes.
func NewRouter(services interfaces.Services, limits RouteLimits) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(services.GetConfig().Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	SetupRoutes(router, services, limits)
	return router, nil
}

// SetupRoutes configures all routes with proper middleware
func SetupRoutes(router *gin.Engine, services interfaces.Services, limits RouteLimits) {
	log := services.GetLogger()

	// Global middleware
	router.Use(middlewares.RequestLogging(log))
	router.Use(middlewares.Recovery(log))
	router.Use(middlewares.Security())
	router.Use(middlewares.CORS(services.GetConfig().API.CORS))
	if limits.General != nil {
		router.Use(middlewares.RateLimit(limits.General))
	}

	router.SetHTMLTemplate(web.MustTemplates())
	router.StaticFS("/static", web.StaticFS())

	// Health check (no auth required)
	router.GET("/health", handlers.HealthCheck(services))

	setupWebRoutes(router, services)
	setupAPIRoutes(router.Group("/api"), services, limits)
}

// setupWebRoutes configures the pages
func setupWebRoutes(router *gin.Engine, services interfaces.Services) {
	router.GET("/", handlers.IndexPage(services))
	router.GET("/msgs", middlewares.WebAuth(services), handlers.MessagesPage(services))
}

// setupAPIRoutes configures session and message endpoints
func setupAPIRoutes(rg *gin.RouterGroup, services interfaces.Services, limits RouteLimits) {
	login := []gin.HandlerFunc{}
	if limits.Login != nil {
		login = append(login, middlewares.RateLimit(limits.Login))
	}
	rg.POST("/login", append(login, handlers.Login(services))...)
	rg.POST("/refresh", handlers.RefreshToken(services))
	rg.GET("/logout", handlers.Logout(services))

	authenticated := rg.Group("/")
	authenticated.Use(middlewares.AuthRequired(services))
	{
		authenticated.POST("/message", handlers.CreateMessage(services))
		authenticated.GET("/messages", handlers.ListMessages(services))
		authenticated.GET("/messages/count", handlers.CountMessages(services))
		authenticated.GET("/audit", handlers.GetAuditLogs(services))
		authenticated.GET("/ws", handlers.MessageFeedWebSocket(services))
	}
}
