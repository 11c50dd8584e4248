package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
}

func (s staticTokens) Token(_ context.Context) (string, error)     { return s.token, nil }
func (s staticTokens) SaveToken(_ context.Context, _ string) error { return nil }
func (s staticTokens) ClearToken(_ context.Context) error          { return nil }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newWSServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitEvent(t *testing.T, c *Conn, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestBackoffSchedule(t *testing.T) {
	expected := []time.Duration{
		3000 * time.Millisecond,
		6000 * time.Millisecond,
		12000 * time.Millisecond,
		24000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, backoffDelay(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 30*time.Second, backoffDelay(40))
}

func TestConnectAppendsToken(t *testing.T) {
	var gotToken atomic.Value
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotToken.Store(r.URL.Query().Get("token"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{token: "secret-token"})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	assert.Equal(t, "secret-token", gotToken.Load())
	assert.True(t, c.IsConnected())
	assert.Equal(t, StateOpen, c.State())
}

func TestConnectAnonymousWithoutToken(t *testing.T) {
	var gotToken atomic.Value
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotToken.Store(r.URL.RawQuery)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	assert.Equal(t, "", gotToken.Load())
}

func TestConnectIdempotent(t *testing.T) {
	var upgrades atomic.Int32
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		upgrades.Add(1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{})
	defer c.Disconnect()

	c.Connect(context.Background())
	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, int32(1), upgrades.Load())
	assert.True(t, c.IsConnected())
}

func TestSendMessageDroppedWhenNotOpen(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", staticTokens{})

	assert.False(t, c.IsConnected())
	assert.NotPanics(t, func() {
		c.SendMessage(map[string]string{"type": "ping"})
	})
}

func TestSendAndReceive(t *testing.T) {
	received := make(chan string, 1)
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	c.SendMessage(map[string]string{"type": "ping"})

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"type":"ping"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the frame")
	}

	ev := waitEvent(t, c, EventMessage)
	assert.JSONEq(t, `{"type":"pong"}`, string(ev.Data))
}

func TestBurstDeliversEveryFrame(t *testing.T) {
	const frames = 300
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		for i := 0; i < frames; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	// 超出事件缓冲容量的突发：先让缓冲灌满再消费，
	// 读循环背压下入站帧一条不少
	time.Sleep(200 * time.Millisecond)

	got := 0
	deadline := time.After(5 * time.Second)
	for got < frames {
		select {
		case ev := <-c.Events():
			if ev.Kind == EventMessage {
				got++
			}
		case <-deadline:
			t.Fatalf("仅收到 %d/%d 帧", got, frames)
		}
	}
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})

	c := NewConn(wsURL, staticTokens{})
	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	ev := waitEvent(t, c, EventClose)
	assert.Equal(t, websocket.CloseNormalClosure, ev.Code)
	assert.False(t, c.reconnectPending())
	assert.Equal(t, 0, c.Attempts())
}

func TestGoingAwayDoesNotReconnect(t *testing.T) {
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})

	c := NewConn(wsURL, staticTokens{})
	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	ev := waitEvent(t, c, EventClose)
	assert.Equal(t, websocket.CloseGoingAway, ev.Code)
	assert.False(t, c.reconnectPending())
}

func TestAbnormalCloseSchedulesReconnect(t *testing.T) {
	var upgrades atomic.Int32
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		if upgrades.Add(1) == 1 {
			// 第一条连接直接掐断，不发关闭帧
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{})
	c.backoffFn = func(attempt int) time.Duration { return 20 * time.Millisecond }
	defer c.Disconnect()

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)
	waitEvent(t, c, EventClose)

	// 自动重连并再次打开
	waitEvent(t, c, EventOpen)
	assert.GreaterOrEqual(t, upgrades.Load(), int32(2))
	// 成功打开后重连计数归零
	assert.Equal(t, 0, c.Attempts())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	var upgrades atomic.Int32
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		upgrades.Add(1)
		_ = conn.Close()
	})

	c := NewConn(wsURL, staticTokens{})
	c.backoffFn = func(attempt int) time.Duration { return time.Hour }

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)
	waitEvent(t, c, EventClose)
	require.True(t, c.reconnectPending())

	c.Disconnect()
	assert.False(t, c.reconnectPending())
	assert.False(t, c.IsConnected())

	// 幂等
	assert.NotPanics(t, c.Disconnect)
}

func TestForcedReconnect(t *testing.T) {
	var upgrades atomic.Int32
	_, wsURL := newWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		upgrades.Add(1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(wsURL, staticTokens{})
	defer c.Disconnect()

	c.Connect(context.Background())
	waitEvent(t, c, EventOpen)

	c.Reconnect()
	assert.False(t, c.IsConnected())

	waitEvent(t, c, EventOpen)
	assert.Equal(t, int32(2), upgrades.Load())
}

func TestDialFailureEmitsErrorAndSchedulesReconnect(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", staticTokens{})
	c.backoffFn = func(attempt int) time.Duration { return time.Hour }
	defer c.Disconnect()

	c.Connect(context.Background())
	ev := waitEvent(t, c, EventError)
	assert.Error(t, ev.Err)
	assert.True(t, c.reconnectPending())
	assert.Equal(t, 1, c.Attempts())
}
