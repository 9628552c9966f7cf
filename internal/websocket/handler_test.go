package websocket

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(token string) (string, error) {
	if userID, ok := strings.CutPrefix(token, "tok-"); ok && userID != "" {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

type wsTestServer struct {
	hub *Hub
	srv *httptest.Server
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := newTestHub()
	h := NewHandler(hub, fakeAuth{}, HandlerConfig{SendBufferSize: 16})

	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)
	r.POST("/online", h.HandleOnlineStatus)
	r.GET("/metrics", h.HandleMetrics)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsTestServer{hub: hub, srv: srv}
}

func (s *wsTestServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readUntil reads frames until one matches msgType (and event, for system frames)
func readUntil(t *testing.T, conn *websocket.Conn, msgType, event string) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		var frame map[string]interface{}
		require.NoError(t, wsjson.Read(ctx, conn, &frame))
		if frame["type"] != msgType {
			continue
		}
		if event != "" {
			payload, _ := frame["payload"].(map[string]interface{})
			if payload["event"] != event {
				continue
			}
		}
		return frame
	}
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

func TestHandleWebSocketRejectsMissingToken(t *testing.T) {
	s := newWSTestServer(t)

	resp, err := http.Get(s.srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2, err := http.Get(s.srv.URL + "/ws?token=garbage")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestHandleWebSocketIdentifyAndNotify(t *testing.T) {
	s := newWSTestServer(t)
	conn := s.dial(t, "tok-alice")

	readUntil(t, conn, MessageTypeSystem, "connected")
	assert.Equal(t, 0, s.hub.Registry.OnlineUserCount())

	send(t, conn, map[string]interface{}{"type": "identify", "id": "req-1", "payload": map[string]string{}})
	presence := readUntil(t, conn, MessageTypePresence, "")
	assert.Equal(t, 1.0, presence["payload"].(map[string]interface{})["online_users"])

	identified := readUntil(t, conn, MessageTypeSystem, "identified")
	assert.Equal(t, "req-1", identified["reply_to"])
	assert.True(t, s.hub.Registry.IsOnline("alice"))

	n := s.hub.NotifyUser("alice", NewMessage(MessageTypeLike, ActivityPayload{ActorID: "bob", SubjectID: "p1", Message: "Your post was liked"}))
	assert.Equal(t, 1, n)

	like := readUntil(t, conn, MessageTypeLike, "")
	payload := like["payload"].(map[string]interface{})
	assert.Equal(t, "bob", payload["actor_id"])
	assert.Equal(t, "p1", payload["subject_id"])
}

func TestHandleWebSocketRejectsIdentityMismatch(t *testing.T) {
	s := newWSTestServer(t)
	conn := s.dial(t, "tok-alice")
	readUntil(t, conn, MessageTypeSystem, "connected")

	send(t, conn, map[string]interface{}{"type": "identify", "payload": map[string]string{"user_id": "mallory"}})
	errFrame := readUntil(t, conn, MessageTypeError, "")
	assert.Equal(t, "identity_mismatch", errFrame["payload"].(map[string]interface{})["code"])

	assert.False(t, s.hub.Registry.IsOnline("mallory"))
	assert.False(t, s.hub.Registry.IsOnline("alice"))
}

func TestHandleWebSocketPingAndUnknown(t *testing.T) {
	s := newWSTestServer(t)
	conn := s.dial(t, "tok-alice")
	readUntil(t, conn, MessageTypeSystem, "connected")

	send(t, conn, map[string]interface{}{"type": "ping", "id": "p-1", "payload": map[string]int64{"client_time": time.Now().UnixMilli()}})
	pong := readUntil(t, conn, MessageTypePong, "")
	assert.Equal(t, "p-1", pong["reply_to"])

	send(t, conn, map[string]interface{}{"type": "dance"})
	errFrame := readUntil(t, conn, MessageTypeError, "")
	assert.Equal(t, "unknown_type", errFrame["payload"].(map[string]interface{})["code"])
}

func TestHandleWebSocketCleanupOnClose(t *testing.T) {
	s := newWSTestServer(t)

	alice := s.dial(t, "tok-alice")
	readUntil(t, alice, MessageTypeSystem, "connected")
	send(t, alice, map[string]interface{}{"type": "identify"})
	readUntil(t, alice, MessageTypeSystem, "identified")

	bob := s.dial(t, "tok-bob")
	readUntil(t, bob, MessageTypeSystem, "connected")
	send(t, bob, map[string]interface{}{"type": "identify"})
	readUntil(t, bob, MessageTypeSystem, "identified")

	require.Equal(t, 2, s.hub.Registry.OnlineUserCount())

	// abrupt close, no close handshake
	bob.CloseNow()

	require.Eventually(t, func() bool {
		return !s.hub.Registry.IsOnline("bob") && s.hub.Lifecycle.Count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	presence := readUntil(t, alice, MessageTypePresence, "")
	for presence["payload"].(map[string]interface{})["online_users"] != 1.0 {
		presence = readUntil(t, alice, MessageTypePresence, "")
	}
	assert.True(t, s.hub.Registry.IsOnline("alice"))
}

func TestHandleOnlineStatus(t *testing.T) {
	s := newWSTestServer(t)
	s.hub.Registry.Bind("alice", newFakeHandle())

	resp, err := http.Post(s.srv.URL+"/online", "application/json",
		bytes.NewBufferString(`{"user_ids":["alice","bob"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Statuses map[string]bool `json:"statuses"`
	}
	require.NoError(t, jsonDecode(resp, &body))
	assert.True(t, body.Statuses["alice"])
	assert.False(t, body.Statuses["bob"])

	bad, err := http.Post(s.srv.URL+"/online", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHandleMetrics(t *testing.T) {
	s := newWSTestServer(t)
	s.hub.Registry.Bind("alice", newFakeHandle())

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		WebSocket   MetricsSnapshot `json:"websocket"`
		OnlineUsers []string        `json:"online_users"`
	}
	require.NoError(t, jsonDecode(resp, &body))
	assert.Equal(t, 1, body.WebSocket.OnlineUsers)
	assert.Equal(t, []string{"alice"}, body.OnlineUsers)
}
