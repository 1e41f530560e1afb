package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/metrics"
	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/telemetry"
)

const testBase = "ws://test/api/ws/warehouses"

// fakeConn is driven by the test through its channels
type fakeConn struct {
	frames chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	controls  [][]byte
	deadlines []time.Time
	hold      chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	default:
	}
	select {
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteControl(_ int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	c.controls = append(c.controls, data)
	c.deadlines = append(c.deadlines, deadline)
	hold := c.hold
	c.mu.Unlock()

	if hold != nil {
		<-hold
	}
	return nil
}

// stallWrites makes control writes block until the returned channel is closed
func (c *fakeConn) stallWrites() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = make(chan struct{})
	return c.hold
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sentControls() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.controls...)
}

type dialResult struct {
	conn *fakeConn
	err  error
}

// fakeDialer blocks every dial until the test supplies a result for its endpoint
type fakeDialer struct {
	ignoreCtx bool

	mu      sync.Mutex
	results map[string]chan dialResult
	headers []http.Header
	calls   chan string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		results: map[string]chan dialResult{},
		calls:   make(chan string, 32),
	}
}

func (d *fakeDialer) resultsFor(endpoint string) chan dialResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.results[endpoint]
	if !ok {
		ch = make(chan dialResult, 4)
		d.results[endpoint] = ch
	}
	return ch
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string, header http.Header) (Conn, error) {
	d.mu.Lock()
	d.headers = append(d.headers, header)
	d.mu.Unlock()
	d.calls <- endpoint

	results := d.resultsFor(endpoint)
	if d.ignoreCtx {
		r := <-results
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	}

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) accept(endpoint string) *fakeConn {
	conn := newFakeConn()
	d.resultsFor(endpoint) <- dialResult{conn: conn}
	return conn
}

func (d *fakeDialer) fail(endpoint string, err error) {
	d.resultsFor(endpoint) <- dialResult{err: err}
}

// manualClock fires timers only when advanced
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// recordingSink captures what the manager delivers
type recordingSink struct {
	mu       sync.Mutex
	resets   []string
	ingested chan telemetry.Message
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ingested: make(chan telemetry.Message, 64)}
}

func (s *recordingSink) Ingest(msg telemetry.Message) bool {
	s.ingested <- msg
	return true
}

func (s *recordingSink) Reset(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, scope)
}

func (s *recordingSink) Resets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resets...)
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	clock  *manualClock
	sink   *recordingSink
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = testBase
	}
	h := &harness{
		dialer: newFakeDialer(),
		clock:  newManualClock(),
		sink:   newRecordingSink(),
	}
	h.m = NewManager(cfg, h.sink,
		WithDialer(h.dialer),
		WithClock(h.clock),
		WithLogger(logger.NewTestLogger()),
	)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) expectDial(t *testing.T, endpoint string) {
	t.Helper()
	select {
	case got := <-h.dialer.calls:
		require.Equal(t, endpoint, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected dial to %s", endpoint)
	}
}

func (h *harness) expectNoDial(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.dialer.calls:
		t.Fatalf("unexpected dial to %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) waitState(t *testing.T, cond func(models.ConnectionStatus) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.m.Status()) }, 2*time.Second, 5*time.Millisecond)
}

// openLive opens scope and waits until the connection is up
func (h *harness) openLive(t *testing.T, scope string) *fakeConn {
	t.Helper()
	h.m.Open(scope)
	endpoint := testBase + "/" + scope
	h.expectDial(t, endpoint)
	conn := h.dialer.accept(endpoint)
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.State == models.StateOpen })
	return conn
}

func (h *harness) nextMessage(t *testing.T) telemetry.Message {
	t.Helper()
	select {
	case msg := <-h.sink.ingested:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected a delivered message")
		return nil
	}
}

func frame(kind, warehouseID, rest string) []byte {
	body := `{"type":"` + kind + `","warehouse_id":"` + warehouseID + `"`
	if rest != "" {
		body += "," + rest
	}
	return []byte(body + "}")
}

func isOpen(s models.ConnectionStatus) bool { return s.State == models.StateOpen }

func TestManager_OpenDeliversFrames(t *testing.T) {
	h := newHarness(t, Config{Token: "secret"})

	conn := h.openLive(t, "W1")
	conn.frames <- frame(telemetry.TypeAvgBattery, "W1", `"avg_battery":55.5`)

	msg := h.nextMessage(t)
	battery, ok := msg.(telemetry.AvgBattery)
	require.True(t, ok)
	assert.Equal(t, 55.5, battery.AvgBattery)

	assert.Equal(t, []string{"W1"}, h.sink.Resets())
	st := h.m.Status()
	assert.Equal(t, "W1", st.Scope)
	assert.NotEmpty(t, st.ConnID)

	h.dialer.mu.Lock()
	assert.Equal(t, "Bearer secret", h.dialer.headers[0].Get("Authorization"))
	h.dialer.mu.Unlock()
}

func TestManager_MalformedFramesKeepConnection(t *testing.T) {
	h := newHarness(t, Config{})
	malformed := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropMalformed))
	noType := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropNoType))

	conn := h.openLive(t, "W1")
	conn.frames <- []byte(`not json`)
	conn.frames <- []byte(`[1,2,3]`)
	conn.frames <- []byte(`{"warehouse_id":"W1"}`)
	conn.frames <- frame(telemetry.TypeScanned24h, "W1", `"count":"many"`)
	conn.frames <- frame(telemetry.TypeScanned24h, "W1", `"count":12`)

	msg := h.nextMessage(t)
	assert.Equal(t, telemetry.TypeScanned24h, msg.Type())
	assert.Len(t, h.sink.ingested, 0)

	assert.True(t, isOpen(h.m.Status()))
	assert.Equal(t, malformed+3, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropMalformed)))
	assert.Equal(t, noType+1, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropNoType)))
}

func TestManager_UnknownTypeReachesSink(t *testing.T) {
	h := newHarness(t, Config{})

	conn := h.openLive(t, "W1")
	conn.frames <- frame("robot.teleported", "W1", `"to":"mars"`)

	msg := h.nextMessage(t)
	_, ok := msg.(telemetry.Unknown)
	assert.True(t, ok)
	assert.True(t, isOpen(h.m.Status()))
}

func TestManager_ReconnectsAfterAbnormalClose(t *testing.T) {
	h := newHarness(t, Config{ReconnectInterval: 3 * time.Second})
	reconnects := testutil.ToFloat64(metrics.Reconnects)

	conn := h.openLive(t, "W1")
	conn.errs <- io.ErrUnexpectedEOF

	h.waitState(t, func(s models.ConnectionStatus) bool { return s.ReconnectPending })
	st := h.m.Status()
	assert.Equal(t, models.StateClosed, st.State)
	assert.Equal(t, 1, st.Attempts)
	assert.Contains(t, st.LastError, "unexpected EOF")
	assert.Equal(t, reconnects+1, testutil.ToFloat64(metrics.Reconnects))

	h.clock.Advance(2 * time.Second)
	h.expectNoDial(t)

	h.clock.Advance(time.Second)
	h.expectDial(t, testBase+"/W1")
	h.dialer.accept(testBase + "/W1")
	h.waitState(t, isOpen)

	st = h.m.Status()
	assert.Equal(t, 0, st.Attempts)
	assert.Empty(t, st.LastError)
	assert.Equal(t, []string{"W1"}, h.sink.Resets(), "reconnect keeps the store")
}

func TestManager_ReconnectsAfterFailedDial(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Open("W1")
	h.expectDial(t, testBase+"/W1")
	h.dialer.fail(testBase+"/W1", errors.New("connection refused"))

	h.waitState(t, func(s models.ConnectionStatus) bool { return s.ReconnectPending })
	assert.Equal(t, 1, h.clock.Pending())

	h.clock.Advance(DefaultReconnectInterval)
	h.expectDial(t, testBase+"/W1")
}

func TestManager_ServerNormalCloseDoesNotReconnect(t *testing.T) {
	h := newHarness(t, Config{})

	conn := h.openLive(t, "W1")
	conn.errs <- &websocket.CloseError{Code: websocket.CloseNormalClosure}

	h.waitState(t, func(s models.ConnectionStatus) bool { return s.State == models.StateClosed })
	assert.False(t, h.m.Status().ReconnectPending)
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Minute)
	h.expectNoDial(t)
}

func TestManager_CloseIsFinal(t *testing.T) {
	h := newHarness(t, Config{})

	conn := h.openLive(t, "W1")
	h.m.Close()

	assert.True(t, conn.isClosed())
	controls := conn.sentControls()
	require.Len(t, controls, 1)
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), controls[0])

	st := h.m.Status()
	assert.Equal(t, models.StateClosed, st.State)
	assert.False(t, st.ReconnectPending)

	h.clock.Advance(time.Minute)
	h.expectNoDial(t)
	assert.Equal(t, 0, h.clock.Pending())

	assert.NotPanics(t, h.m.Close)
	assert.Equal(t, []string{"W1"}, h.sink.Resets(), "close keeps the store")
}

func TestManager_CloseDuringBackoffCancelsTimer(t *testing.T) {
	h := newHarness(t, Config{})

	conn := h.openLive(t, "W1")
	conn.errs <- io.ErrUnexpectedEOF
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.ReconnectPending })

	h.m.Close()
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Minute)
	h.expectNoDial(t)
	assert.False(t, h.m.Status().ReconnectPending)
}

func TestManager_ReopenAfterCloseKeepsData(t *testing.T) {
	h := newHarness(t, Config{})

	h.openLive(t, "W1")
	h.m.Close()

	h.m.Open("W1")
	h.expectDial(t, testBase+"/W1")
	h.dialer.accept(testBase + "/W1")
	h.waitState(t, isOpen)

	assert.Equal(t, []string{"W1"}, h.sink.Resets())
}

func TestManager_OpenSameScopeIsNoop(t *testing.T) {
	h := newHarness(t, Config{})

	h.openLive(t, "W1")
	h.m.Open("W1")

	h.expectNoDial(t)
	assert.Equal(t, []string{"W1"}, h.sink.Resets())
}

func TestManager_SwitchResetsAndClosesOldConnection(t *testing.T) {
	h := newHarness(t, Config{})
	switches := testutil.ToFloat64(metrics.ScopeSwitches)

	old := h.openLive(t, "W1")
	h.m.Open("W2")

	assert.True(t, old.isClosed())
	assert.Equal(t, []string{"W1", "W2"}, h.sink.Resets())
	assert.Equal(t, switches+2, testutil.ToFloat64(metrics.ScopeSwitches))

	h.expectDial(t, testBase+"/W2")
	conn := h.dialer.accept(testBase + "/W2")
	h.waitState(t, isOpen)

	conn.frames <- frame(telemetry.TypeScanned24h, "W2", `"count":1`)
	assert.Equal(t, "W2", h.nextMessage(t).Warehouse())
}

func TestManager_StaleGenerationFramesDropped(t *testing.T) {
	h := newHarness(t, Config{})
	stale := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropStale))

	h.openLive(t, "W1")
	h.m.mu.Lock()
	oldGen := h.m.gen
	h.m.mu.Unlock()

	h.m.Open("W2")
	h.m.handleFrame(oldGen, frame(telemetry.TypeAvgBattery, "W1", `"avg_battery":10`))

	assert.Len(t, h.sink.ingested, 0)
	assert.Equal(t, stale+1, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.DropStale)))
}

func TestManager_SwitchCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t, Config{})

	conn := h.openLive(t, "W1")
	conn.errs <- io.ErrUnexpectedEOF
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.ReconnectPending })

	h.m.Open("W2")
	h.expectDial(t, testBase+"/W2")

	h.clock.Advance(time.Minute)
	h.expectNoDial(t)

	st := h.m.Status()
	assert.Equal(t, "W2", st.Scope)
	assert.Equal(t, 0, st.Attempts)
}

func TestManager_StaleDialIsClosed(t *testing.T) {
	h := newHarness(t, Config{})
	h.dialer.ignoreCtx = true

	h.m.Open("W1")
	h.expectDial(t, testBase+"/W1")
	h.m.Open("W2")
	h.expectDial(t, testBase+"/W2")

	late := h.dialer.accept(testBase + "/W1")
	require.Eventually(t, late.isClosed, 2*time.Second, 5*time.Millisecond)

	h.dialer.accept(testBase + "/W2")
	h.waitState(t, isOpen)
	assert.Equal(t, "W2", h.m.Status().Scope)
}

func TestManager_MaxAttempts(t *testing.T) {
	h := newHarness(t, Config{MaxAttempts: 1})

	h.m.Open("W1")
	h.expectDial(t, testBase+"/W1")
	h.dialer.fail(testBase+"/W1", errors.New("refused"))
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.ReconnectPending })

	h.clock.Advance(DefaultReconnectInterval)
	h.expectDial(t, testBase+"/W1")
	h.dialer.fail(testBase+"/W1", errors.New("still refused"))

	h.waitState(t, func(s models.ConnectionStatus) bool {
		return s.State == models.StateClosed && !s.ReconnectPending && s.LastError == "still refused"
	})
	assert.Equal(t, 0, h.clock.Pending())
}

func TestManager_NoEndpoint(t *testing.T) {
	sink := newRecordingSink()
	m := NewManager(Config{}, sink, WithDialer(newFakeDialer()), WithClock(newManualClock()), WithLogger(logger.NewTestLogger()))

	m.Open("W1")

	st := m.Status()
	assert.Equal(t, models.StateClosed, st.State)
	assert.Equal(t, ErrNoEndpoint.Error(), st.LastError)
	assert.False(t, st.ReconnectPending)
}

func TestManager_OpenEmptyGoesIdle(t *testing.T) {
	h := newHarness(t, Config{})

	assert.True(t, h.m.Status().Idle())

	conn := h.openLive(t, "W1")
	h.m.Open("")

	assert.True(t, conn.isClosed())
	assert.True(t, h.m.Status().Idle())
	assert.Equal(t, []string{"W1", ""}, h.sink.Resets())
	h.expectNoDial(t)
}

func TestManager_Reconnect(t *testing.T) {
	h := newHarness(t, Config{})

	old := h.openLive(t, "W1")
	h.m.Reconnect()

	assert.True(t, old.isClosed())
	h.expectDial(t, testBase+"/W1")
	h.dialer.accept(testBase + "/W1")
	h.waitState(t, isOpen)
	assert.Equal(t, []string{"W1"}, h.sink.Resets())
}

func TestManager_ChangesSignal(t *testing.T) {
	h := newHarness(t, Config{})

	h.m.Open("W1")
	select {
	case <-h.m.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a status change signal")
	}
}

func TestEndpointFor(t *testing.T) {
	got, err := EndpointFor("wss://dev.rtk-smart-warehouse.ru/api/ws/warehouses/", "W 1/a")
	require.NoError(t, err)
	assert.Equal(t, "wss://dev.rtk-smart-warehouse.ru/api/ws/warehouses/W%201%2Fa", got)

	_, err = EndpointFor("  ", "W1")
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestManager_CloseHandshakeDoesNotBlockStatus(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.openLive(t, "W1")
	release := conn.stallWrites()

	done := make(chan struct{})
	go func() {
		h.m.Close()
		close(done)
	}()

	// Status must stay reachable while the close frame is stuck on the wire
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.State == models.StateClosing })
	select {
	case <-done:
		t.Fatal("Close returned before the close frame was written")
	default:
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.Equal(t, models.StateClosed, h.m.Status().State)
	assert.True(t, conn.isClosed())

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.deadlines, 1)
	assert.WithinDuration(t, time.Now(), conn.deadlines[0], 2*time.Second)
}

func TestManager_SwitchDuringCloseHandshake(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.openLive(t, "W1")
	release := conn.stallWrites()

	done := make(chan struct{})
	go func() {
		h.m.Close()
		close(done)
	}()
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.State == models.StateClosing })

	h.m.Open("W2")
	h.expectDial(t, testBase+"/W2")

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	st := h.m.Status()
	assert.Equal(t, "W2", st.Scope)
	assert.Equal(t, models.StateConnecting, st.State, "a finished close must not override the new scope")
	assert.Equal(t, []string{"W2"}, h.sink.Resets())
}

func TestManager_ReopenDuringCloseHandshake(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.openLive(t, "W1")
	release := conn.stallWrites()

	done := make(chan struct{})
	go func() {
		h.m.Close()
		close(done)
	}()
	h.waitState(t, func(s models.ConnectionStatus) bool { return s.State == models.StateClosing })

	h.m.Open("W1")
	h.expectDial(t, testBase+"/W1")

	close(release)
	<-done

	assert.Equal(t, models.StateConnecting, h.m.Status().State)
}
