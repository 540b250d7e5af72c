package handlers

import (
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/middlewares"
	"msgboard/internal/api/models"
	"msgboard/internal/database"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	timestampLayout         = "2006-01-02 15:04:05 MST"
	fallbackTimestampLayout = "2006-01-02 15:04"

	EventMessageCreated = "message_created"
)

// FormatTimestamp renders ts in the named IANA zone. An unknown zone falls
// back to a plain UTC rendering without zone name.
func FormatTimestamp(ts time.Time, timezone string) string {
	if timezone == "" || timezone == "Local" {
		return ts.UTC().Format(fallbackTimestampLayout)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return ts.UTC().Format(fallbackTimestampLayout)
	}
	return ts.In(loc).Format(timestampLayout)
}

func newMessageView(m database.Message, timezone string) models.MessageView {
	return models.MessageView{
		ID:        m.ID,
		Text:      m.Text,
		Timestamp: FormatTimestamp(m.Timestamp, timezone),
	}
}

// CreateMessage stores a message stamped with the current UTC time and
// returns it rendered in the caller's timezone.
func CreateMessage(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := middlewares.CurrentIdentity(c)
		log := logger.GetLoggerFromContext(c, services.GetLogger())

		var form models.MessageForm
		if err := c.ShouldBind(&form); err != nil {
			models.Abort(c, models.NewAPIError(models.ErrCodeInvalidRequest,
				"Message must be 1 to 500 characters", http.StatusUnprocessableEntity))
			return
		}

		msg, err := services.MessageStore().Append(c.Request.Context(), form.Message, time.Now().UTC())
		if err != nil {
			log.StructuredError(err, map[string]interface{}{"operation": "create_message"})
			models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Failed to store message", http.StatusInternalServerError))
			return
		}
		log.Debug("Message stored", "message_id", msg.ID, "timezone", id.Timezone)

		services.Feed().Publish(models.FeedEvent{
			Type:      EventMessageCreated,
			Data:      *msg,
			Timestamp: msg.Timestamp.Unix(),
		})

		view := newMessageView(*msg, id.Timezone)
		c.HTML(http.StatusOK, "message_partial.html", gin.H{
			"message":   view.Text,
			"timestamp": view.Timestamp,
		})
	}
}

// ListMessages returns messages newest first, rendered in the caller's
// timezone. q filters by case-insensitive substring, from/to (RFC3339) by
// time range.
func ListMessages(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := middlewares.CurrentIdentity(c)
		log := logger.GetLoggerFromContext(c, services.GetLogger())

		var query models.MessageQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			models.Abort(c, models.NewAPIError(models.ErrCodeInvalidRequest, "Invalid query", http.StatusBadRequest))
			return
		}

		from, to, err := parseRange(query.From, query.To)
		if err != nil {
			models.Abort(c, models.NewAPIError(models.ErrCodeInvalidRequest,
				"from and to must be RFC3339 timestamps", http.StatusBadRequest).WithDetails(err.Error()))
			return
		}
		ranged := query.From != "" || query.To != ""

		ctx := c.Request.Context()
		var messages []database.Message
		switch {
		case strings.TrimSpace(query.Search) != "":
			messages, err = services.MessageStore().Search(ctx, strings.TrimSpace(query.Search))
			if err == nil && ranged {
				messages = filterRange(messages, from, to)
			}
		case ranged:
			messages, err = services.MessageStore().ListBetween(ctx, from, to)
		default:
			messages, err = services.MessageStore().ListAll(ctx, true)
		}
		if err != nil {
			log.StructuredError(err, map[string]interface{}{"operation": "list_messages"})
			models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Failed to load messages", http.StatusInternalServerError))
			return
		}

		views := make([]models.MessageView, 0, len(messages))
		for _, m := range messages {
			views = append(views, newMessageView(m, id.Timezone))
		}

		switch c.NegotiateFormat(binding.MIMEHTML, binding.MIMEJSON) {
		case binding.MIMEJSON:
			c.JSON(http.StatusOK, models.BaseResponse{
				Success:   true,
				Data:      views,
				Timestamp: time.Now().Unix(),
				RequestID: c.GetString("request_id"),
			})
		default:
			c.HTML(http.StatusOK, "messages_list.html", gin.H{"messages": views})
		}
	}
}

// CountMessages returns the number of stored messages.
func CountMessages(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := services.MessageStore().Count(c.Request.Context())
		if err != nil {
			logger.GetLoggerFromContext(c, services.GetLogger()).StructuredError(err, map[string]interface{}{
				"operation": "count_messages",
			})
			models.Abort(c, models.NewAPIError(models.ErrCodeInternalError, "Failed to count messages", http.StatusInternalServerError))
			return
		}

		c.JSON(http.StatusOK, models.BaseResponse{
			Success:   true,
			Data:      models.MessageCountResponse{Count: n},
			Timestamp: time.Now().Unix(),
			RequestID: c.GetString("request_id"),
		})
	}
}

// parseRange parses optional RFC3339 bounds. A missing lower bound is the
// zero time, a missing upper bound is now.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()
	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from.UTC(), to.UTC(), nil
}

func filterRange(messages []database.Message, from, to time.Time) []database.Message {
	out := messages[:0]
	for _, m := range messages {
		if !m.Timestamp.Before(from) && !m.Timestamp.After(to) {
			out = append(out, m)
		}
	}
	return out
}
