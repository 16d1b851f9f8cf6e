package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"relaywatch/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*HubService, *httptest.Server) {
	t.Helper()
	hub := NewHubService(logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesViewers(t *testing.T) {
	hub, srv := startHub(t)
	a, b := dial(t, srv), dial(t, srv)

	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.True(t, hub.Broadcast([]byte(`{"frame":1}`)))

	for _, c := range []*websocket.Conn{a, b} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"frame":1}`, string(msg))
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	c := dial(t, srv)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	c.Close()

	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// fakeConn records written messages. With stall set, WriteMessage blocks
// until release is closed.
type fakeConn struct {
	mu       sync.Mutex
	messages []string
	stall    bool
	release  chan struct{}
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.stall {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, string(data))
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func TestHub_StalledViewerDoesNotDelayOthers(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	stalled := &fakeConn{stall: true, release: make(chan struct{})}
	defer close(stalled.release)
	fast := &fakeConn{}
	hub.join(stalled)
	hub.join(fast)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, time.Millisecond)

	for _, frame := range []string{"1", "2", "3"} {
		require.Eventually(t, func() bool { return hub.Broadcast([]byte(frame)) }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool {
			got := fast.received()
			return len(got) > 0 && got[len(got)-1] == frame
		}, 500*time.Millisecond, time.Millisecond, "frame %s delayed by a stalled viewer", frame)
	}
}
