package handlers

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/middlewares"
	"msgboard/internal/api/models"
	"msgboard/internal/database"
	"msgboard/pkg/config"
	"msgboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	feedBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Hub fans feed events out to websocket subscribers. A subscriber that
// cannot keep up misses events instead of blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan models.FeedEvent]struct{}
	closed      bool
	log         *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[chan models.FeedEvent]struct{}),
		log:         log.WithComponent("feed"),
	}
}

// Subscribe registers a subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan models.FeedEvent, func()) {
	ch := make(chan models.FeedEvent, feedBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers event to every subscriber without blocking.
func (h *Hub) Publish(event models.FeedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.log.Warning("Feed subscriber channel full, event dropped", "type", event.Type)
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func newUpgrader(cfg config.CORSConfig) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err == nil && u.Host == r.Host {
				return true
			}
			for _, allowed := range cfg.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageFeedWebSocket streams newly created messages to the caller, with
// timestamps rendered in the caller's timezone. The access token that opened
// the feed is checked again before every event and on every ping; once it is
// no longer valid the feed is closed with a policy violation.
func MessageFeedWebSocket(services interfaces.Services) gin.HandlerFunc {
	upgrader := newUpgrader(services.GetConfig().API.CORS)

	return func(c *gin.Context) {
		log := logger.GetLoggerFromContext(c, services.GetLogger())
		id, _ := middlewares.CurrentIdentity(c)
		token, _ := c.Cookie(models.CookieAccessToken)
		sessionValid := func() bool {
			_, err := services.SessionManager().Authenticate(token, id.Timezone)
			return err == nil
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error("WebSocket upgrade failed", "error", err.Error())
			return
		}
		defer conn.Close()

		events, unsubscribe := services.Feed().Subscribe()
		defer unsubscribe()

		log.Info("Message feed connection established", "client_ip", c.ClientIP())

		done := make(chan struct{})
		go readUntilClosed(conn, done, log)

		pingTicker := time.NewTicker(pingInterval)
		defer pingTicker.Stop()

		for {
			select {
			case event, ok := <-events:
				if !ok {
					closeFeed(conn, websocket.CloseGoingAway, "server shutting down")
					return
				}
				if !sessionValid() {
					log.Info("Message feed session expired", "user_id", id.Subject)
					closeFeed(conn, websocket.ClosePolicyViolation, "session expired")
					return
				}

				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(localizeEvent(event, id.Timezone)); err != nil {
					log.Error("WebSocket write error", "error", err.Error())
					return
				}

			case <-pingTicker.C:
				if !sessionValid() {
					log.Info("Message feed session expired", "user_id", id.Subject)
					closeFeed(conn, websocket.ClosePolicyViolation, "session expired")
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-done:
				log.Info("Message feed client disconnected")
				return
			}
		}
	}
}

func closeFeed(conn *websocket.Conn, code int, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// readUntilClosed drains client frames so pongs and close frames are
// handled. The feed is one way; client messages are ignored.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}, log *logger.Logger) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warning("WebSocket read error", "error", err.Error())
			}
			return
		}
	}
}

func localizeEvent(event models.FeedEvent, timezone string) models.FeedEvent {
	if msg, ok := event.Data.(database.Message); ok {
		event.Data = newMessageView(msg, timezone)
	}
	return event
}
