package handlers

import (
	"net/http"
	"time"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/models"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultAuditLimit = 50

// GetAuditLogs lists the authentication audit trail, newest first.
func GetAuditLogs(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query models.AuditLogQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			models.Abort(c, models.NewAPIError(models.ErrCodeInvalidRequest, "Invalid query", http.StatusBadRequest))
			return
		}
		if query.Limit == 0 {
			query.Limit = defaultAuditLimit
		}

		logs, err := services.AuditLog().GetAuditLogs(c.Request.Context(), query.Action, query.Limit, query.Offset)
		if err != nil {
			logger.GetLoggerFromContext(c, services.GetLogger()).Error("Error getting audit logs", "error", err.Error())
			models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Failed to retrieve audit logs", http.StatusInternalServerError))
			return
		}

		out := make([]models.AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			out = append(out, models.AuditLogResponse{
				ID:        l.ID,
				Action:    l.Action,
				Username:  l.Username,
				Outcome:   l.Outcome,
				Details:   l.Details,
				IPAddress: l.IPAddress,
				Timestamp: l.CreatedAt.Unix(),
			})
		}

		c.JSON(http.StatusOK, models.BaseResponse{
			Success: true,
			Message: "Audit logs retrieved successfully",
			Data: map[string]interface{}{
				"logs":   out,
				"limit":  query.Limit,
				"offset": query.Offset,
				"total":  len(out),
			},
			Timestamp: time.Now().Unix(),
			RequestID: c.GetString("request_id"),
		})
	}
}
