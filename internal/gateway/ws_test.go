package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/store"
	"github.com/lazywh/lazywh/internal/telemetry"
)

type wsBackend struct {
	srv         *httptest.Server
	connections atomic.Int32
	closeCodes  chan int
	auth        chan string
}

// newWSBackend serves /api/ws/warehouses/{id}. Each connection receives
// frames, then handle decides how it ends.
func newWSBackend(t *testing.T, frames func(id string) [][]byte, handle func(conn *websocket.Conn)) *wsBackend {
	t.Helper()
	b := &wsBackend{closeCodes: make(chan int, 4), auth: make(chan string, 4)}
	upgrader := websocket.Upgrader{}

	r := chi.NewRouter()
	r.Get("/api/ws/warehouses/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.auth <- req.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		b.connections.Add(1)

		for _, f := range frames(chi.URLParam(req, "id")) {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				conn.Close()
				return
			}
		}
		handle(conn)
	})

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *wsBackend) base() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/api/ws/warehouses"
}

func TestManager_WebSocketEndToEnd(t *testing.T) {
	frames := func(id string) [][]byte {
		return [][]byte{
			frame(telemetry.TypeAvgBattery, id, `"avg_battery":64`),
			[]byte(`{"type":`),
			frame(telemetry.TypeScanned24h, id, `"count":321`),
			frame(telemetry.TypeScanned24h, "OTHER", `"count":999`),
		}
	}

	var backend *wsBackend
	backend = newWSBackend(t, frames, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					backend.closeCodes <- ce.Code
				}
				return
			}
		}
	})

	st := store.New(store.WithLogger(logger.NewTestLogger()))
	m := NewManager(Config{BaseURL: backend.base(), Token: "tok", HandshakeTimeout: time.Second}, st,
		WithLogger(logger.NewTestLogger()))

	m.Open("W1")

	require.Eventually(t, func() bool {
		v := st.View()
		return v.AvgBattery != nil && v.Scanned24h != nil
	}, 5*time.Second, 10*time.Millisecond)

	v := st.View()
	assert.Equal(t, 64.0, v.AvgBattery.AvgBattery)
	assert.Equal(t, 321, v.Scanned24h.Count)
	assert.Equal(t, models.StateOpen, m.Status().State)
	assert.Equal(t, "Bearer tok", <-backend.auth)

	m.Close()

	select {
	case code := <-backend.closeCodes:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw a close frame")
	}
	assert.Equal(t, int32(1), backend.connections.Load())
	assert.Equal(t, 321, st.View().Scanned24h.Count, "close keeps the data")
}

func TestManager_WebSocketReconnectsAfterDrop(t *testing.T) {
	frames := func(id string) [][]byte {
		return [][]byte{frame(telemetry.TypeScanned24h, id, `"count":1`)}
	}
	// drop the TCP connection without a close frame
	backend := newWSBackend(t, frames, func(conn *websocket.Conn) {
		conn.Close()
	})

	clock := newManualClock()
	st := store.New(store.WithLogger(logger.NewTestLogger()))
	m := NewManager(Config{BaseURL: backend.base()}, st, WithClock(clock), WithLogger(logger.NewTestLogger()))
	t.Cleanup(m.Close)

	m.Open("W1")
	require.Eventually(t, func() bool { return m.Status().ReconnectPending }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), backend.connections.Load())

	clock.Advance(DefaultReconnectInterval)
	require.Eventually(t, func() bool { return backend.connections.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestManager_WebSocketServerNormalClose(t *testing.T) {
	frames := func(string) [][]byte { return nil }
	backend := newWSBackend(t, frames, func(conn *websocket.Conn) {
		defer conn.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	clock := newManualClock()
	st := store.New(store.WithLogger(logger.NewTestLogger()))
	m := NewManager(Config{BaseURL: backend.base()}, st, WithClock(clock), WithLogger(logger.NewTestLogger()))
	t.Cleanup(m.Close)

	m.Open("W1")
	require.Eventually(t, func() bool {
		s := m.Status()
		return s.State == models.StateClosed && s.ConnID != "" && backend.connections.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, m.Status().ReconnectPending)
	assert.Equal(t, 0, clock.Pending())
}
