package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"frontdesk/internal/domain"
	"frontdesk/internal/pkg/jwt"
)

// fakeBookings stands in for repository.BookingRepository.
type fakeBookings map[int64]domain.Location

func (f fakeBookings) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	loc, ok := f[id]
	if !ok {
		return nil, errors.New("booking not found")
	}
	return &domain.Booking{ID: id, Location: loc}, nil
}

func setupServer(t *testing.T) (*Hub, *jwt.Service, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(zap.NewNop())
	tokens := jwt.New("test-secret", time.Hour)
	bookings := fakeBookings{
		1: domain.LocationOrYehuda,
		2: domain.LocationOrYehuda,
		5: domain.LocationOrYehuda,
		6: domain.LocationRothschild,
	}
	r := gin.New()
	NewHandler(hub, tokens, bookings, nil, zap.NewNop()).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, tokens, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func clerkToken(t *testing.T, tokens *jwt.Service, userID int64, loc domain.Location) string {
	t.Helper()
	token, err := tokens.GenerateToken(userID, jwt.RoleFrontDesk, string(loc))
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleWebSocket_RequiresToken(t *testing.T) {
	_, _, url := setupServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/bookings", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"/ws/bookings?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublish_ReachesOnlySubscribedRoom(t *testing.T) {
	hub, tokens, url := setupServer(t)
	token := clerkToken(t, tokens, 7, domain.LocationOrYehuda)

	subscribed := dial(t, url+"/ws/bookings?token="+token+"&room=booking:1")
	other := dial(t, url+"/ws/bookings?token="+token+"&room=booking:2")
	require.Eventually(t, func() bool { return hub.Connections() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish("booking:1", "action_state", map[string]string{"state": "in_flight"})

	subscribed.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := subscribed.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "action_state", ev.Type)
	assert.Equal(t, "booking:1", ev.Room)
	assert.Equal(t, "in_flight", ev.Payload.(map[string]interface{})["state"])

	other.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestSubscribeMessage(t *testing.T) {
	hub, tokens, url := setupServer(t)
	token := clerkToken(t, tokens, 8, domain.LocationOrYehuda)

	conn := dial(t, url+"/ws/bookings?token="+token)
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "room": "booking:5"}))

	require.Eventually(t, func() bool { return hub.Subscribers("booking:5") == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish("booking:5", "action_state", nil)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe", "room": "booking:5"}))
	require.Eventually(t, func() bool { return hub.Subscribers("booking:5") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandleWebSocket_RefusesRoomAtOtherLocation(t *testing.T) {
	hub, tokens, url := setupServer(t)
	token := clerkToken(t, tokens, 7, domain.LocationOrYehuda)

	for _, room := range []string{"booking:6", "booking:404", "booking:abc", "lobby"} {
		_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/bookings?token="+token+"&room="+room, nil)
		require.Error(t, err, room)
		require.NotNil(t, resp, room)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, room)
	}
	assert.Equal(t, 0, hub.Connections())

	noLocation, err := tokens.GenerateToken(3, jwt.RoleFrontDesk, "")
	require.NoError(t, err)
	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/bookings?token="+noLocation+"&room=booking:1", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSubscribeMessage_RefusesRoomAtOtherLocation(t *testing.T) {
	hub, tokens, url := setupServer(t)
	token := clerkToken(t, tokens, 7, domain.LocationOrYehuda)

	conn := dial(t, url+"/ws/bookings?token="+token)
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "room": "booking:6"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "subscribe_denied", ev.Type)
	assert.Equal(t, "booking:6", ev.Room)
	assert.Equal(t, 0, hub.Subscribers("booking:6"))

	hub.Publish("booking:6", "action_state", map[string]string{"state": "in_flight"})
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestManagerJoinsAnyLocation(t *testing.T) {
	hub, tokens, url := setupServer(t)
	token, err := tokens.GenerateToken(1, jwt.RoleManager, "")
	require.NoError(t, err)

	dial(t, url+"/ws/bookings?token="+token+"&room=booking:1&room=booking:6")
	require.Eventually(t, func() bool {
		return hub.Subscribers("booking:1") == 1 && hub.Subscribers("booking:6") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub, tokens, url := setupServer(t)
	token, err := tokens.GenerateToken(9, "manager", "")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/bookings?token="+token, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Connections() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://console.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws/bookings", nil)
	req.Header.Set("Origin", "https://console.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
	assert.True(t, originChecker(nil)(req))
}
