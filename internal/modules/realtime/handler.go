package realtime

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"frontdesk/internal/domain"
	"frontdesk/internal/pkg/jwt"
	"frontdesk/internal/pkg/response"
)

const (
	bookingRoomPrefix = "booking:"
	roomLookupTimeout = 5 * time.Second
)

type tokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

type bookingReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
}

type Handler struct {
	hub      *Hub
	tokens   tokenValidator
	bookings bookingReader
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler accepts consoles from allowedOrigins; an empty list or "*"
// accepts any origin.
func NewHandler(hub *Hub, tokens tokenValidator, bookings bookingReader, allowedOrigins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		tokens:   tokens,
		bookings: bookings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:   logger.Named("realtime_ws"),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws/bookings", h.HandleWebSocket)
}

// HandleWebSocket upgrades GET /ws/bookings?token=JWT&room=booking:1.
// Browsers cannot set headers on websocket requests, hence the query token.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "token query parameter is required")
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
		return
	}

	canJoin := h.roomAuthorizer(claims)
	rooms := c.QueryArray("room")
	for _, room := range rooms {
		if !canJoin(room) {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "no access to room "+room)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.logger.Info("console connected", zap.Int64("user_id", claims.UserID))
	h.hub.ServeWS(conn, claims.UserID, rooms, canJoin)
	h.logger.Info("console disconnected", zap.Int64("user_id", claims.UserID))
}

// roomAuthorizer lets claims join booking:<id> rooms of bookings at their
// location. Unknown rooms and missing bookings are refused.
func (h *Handler) roomAuthorizer(claims *jwt.Claims) func(room string) bool {
	return func(room string) bool {
		if !strings.HasPrefix(room, bookingRoomPrefix) {
			return false
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(room, bookingRoomPrefix), 10, 64)
		if err != nil || id <= 0 {
			return false
		}

		ctx, cancel := context.WithTimeout(context.Background(), roomLookupTimeout)
		defer cancel()
		b, err := h.bookings.GetByID(ctx, id)
		if err != nil {
			h.logger.Debug("room lookup failed", zap.String("room", room), zap.Error(err))
			return false
		}
		if !claims.CanAccess(string(b.Location)) {
			h.logger.Warn("room refused",
				zap.Int64("user_id", claims.UserID),
				zap.String("room", room),
				zap.String("location", string(b.Location)))
			return false
		}
		return true
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
