package transport

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskboard/core/internal/v1/auth"
	"github.com/taskboard/core/internal/v1/logging"
	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/ratelimit"
	"go.uber.org/zap"
)

var errOriginNotAllowed = errors.New("transport: origin not allowed")

// Hub accepts the initial handshake, authenticates it once, and hands
// the resulting Session off to its read/write pumps. Grounded on the
// teacher's transport.Hub, narrowed to a single board (no per-room
// dynamic creation: this domain has one board, not N video rooms).
type Hub struct {
	dispatcher     Dispatcher
	validator      validatorFunc
	allowedOrigins []string
	queueDepth     int
	rateLimiter    *ratelimit.RateLimiter

	mu       sync.Mutex
	sessions map[string]*Session
}

type validatorFunc interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// NewHub wires a Hub. rl may be nil to skip WebSocket handshake rate
// limiting (e.g. in unit tests).
func NewHub(dispatcher Dispatcher, validator validatorFunc, allowedOrigins []string, queueDepth int, rl *ratelimit.RateLimiter) *Hub {
	return &Hub{
		dispatcher:     dispatcher,
		validator:      validator,
		allowedOrigins: allowedOrigins,
		queueDepth:     queueDepth,
		rateLimiter:    rl,
		sessions:       make(map[string]*Session),
	}
}

// ServeWs authenticates the handshake and upgrades to a WebSocket
// session. GET /ws?token=<bearer>
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return
	}

	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket handshake rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.CheckWebSocketUser(c.Request.Context(), claims.Subject); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return validateOrigin(r, h.allowedOrigins) == nil },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	displayName := claims.Name
	if displayName == "" {
		displayName = claims.Email
	}
	if displayName == "" {
		displayName = claims.Subject
	}

	sessionID := uuid.NewString()
	session := NewSession(conn, h.dispatcher, sessionID, claims.Subject, displayName, h.queueDepth)
	session.onClose = h.removeSession

	h.mu.Lock()
	h.sessions[sessionID] = session
	h.mu.Unlock()

	metrics.IncSession()
	logging.Info(c.Request.Context(), "session connected", zap.String("sessionId", sessionID), zap.String("userId", claims.Subject))

	h.dispatcher.HandleConnect(session)

	go session.writePump()
	go session.readPump()
}

// Shutdown closes every live session with reason server-shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.CloseWithReason("server-shutdown")
	}
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.SessionID())
	h.mu.Unlock()
}

func extractToken(c *gin.Context) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	authHeader := c.GetHeader("Authorization")
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil // non-browser clients (native apps, tests, curl)
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return err
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}
	return errOriginNotAllowed
}
