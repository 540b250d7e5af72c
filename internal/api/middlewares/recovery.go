package middlewares

import (
	"fmt"
	"net/http"

	"msgboard/internal/api/models"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery middleware recovers from panics
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.GetLoggerFromContext(c, log).StructuredError(fmt.Errorf("panic: %v", recovered), map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
		models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Internal server error", http.StatusInternalServerError))
	})
}
