package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/metrics"
	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/telemetry"
)

// DefaultReconnectInterval is the delay before redialing after an abnormal close
const DefaultReconnectInterval = 3 * time.Second

// closeFrameTimeout bounds the write of the normal closure frame
const closeFrameTimeout = 500 * time.Millisecond

// Sink receives decoded messages for the current scope
type Sink interface {
	Ingest(msg telemetry.Message) bool
	Reset(scope string)
}

// Config configures the channel manager
type Config struct {
	// BaseURL is the channel URL without the warehouse id,
	// e.g. wss://host/api/ws/warehouses
	BaseURL string
	Token   string

	ReconnectInterval time.Duration
	// MaxAttempts stops reconnecting after this many consecutive failures (0 = never)
	MaxAttempts      int
	HandshakeTimeout time.Duration
}

// Manager owns the realtime connection for the selected warehouse.
//
// Each teardown bumps a generation counter. Goroutines and timers started for
// an older generation find a mismatch when they take the lock and exit
// without touching the sink.
type Manager struct {
	cfg    Config
	sink   Sink
	dialer Dialer
	clock  Clock
	log    logger.Logger

	mu     sync.Mutex
	gen    uint64
	status models.ConnectionStatus
	cancel context.CancelFunc
	conn   Conn
	timer  Timer

	changes chan struct{}
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer replaces the WebSocket dialer
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock replaces the reconnect clock
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// NewManager creates an idle manager delivering into sink
func NewManager(cfg Config, sink Sink, opts ...Option) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}

	m := &Manager{
		cfg:     cfg,
		sink:    sink,
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = &WSDialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	if m.clock == nil {
		m.clock = RealClock()
	}
	if m.log == nil {
		m.log = logger.WithComponent("gateway")
	}

	m.status = models.ConnectionStatus{State: models.StateClosed, Since: m.clock.Now()}
	return m
}

// Open binds the channel to warehouseID. Switching to a different id tears
// down the old connection and resets the sink. An empty id leaves the
// manager idle.
func (m *Manager) Open(warehouseID string) {
	m.mu.Lock()
	stale := m.openLocked(warehouseID)
	m.mu.Unlock()

	closeConn(stale)
}

func (m *Manager) openLocked(warehouseID string) Conn {
	if warehouseID == m.status.Scope {
		if warehouseID == "" || (m.liveLocked() && m.status.State != models.StateClosing) {
			return nil
		}
		// reopening after Close keeps the data
		stale := m.teardownLocked()
		m.status.Attempts = 0
		m.status.LastError = ""
		m.connectLocked()
		return stale
	}

	prev := m.status.Scope
	stale := m.teardownLocked()
	m.status = models.ConnectionStatus{Scope: warehouseID, State: models.StateClosed, Since: m.clock.Now()}
	m.sink.Reset(warehouseID)
	metrics.RecordScopeSwitch()

	m.log.Info().Str("from", prev).Str("to", warehouseID).Msg("switching warehouse")

	if warehouseID == "" {
		m.setStateLocked(models.StateClosed)
		return stale
	}
	m.connectLocked()
	return stale
}

// Reconnect drops the current connection and dials again immediately
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.status.Scope == "" {
		m.mu.Unlock()
		return
	}
	stale := m.teardownLocked()
	m.status.Attempts = 0
	m.status.LastError = ""
	m.connectLocked()
	m.mu.Unlock()

	closeConn(stale)
}

// Close shuts the channel down deliberately. No reconnect is scheduled and
// the sink keeps its data. The status reads Closing while the close
// handshake is in flight and Closed once Close returns.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.liveLocked() || m.status.State == models.StateClosing {
		m.mu.Unlock()
		return
	}
	stale := m.teardownLocked()
	m.status.ReconnectPending = false
	m.setStateLocked(models.StateClosing)
	gen := m.gen
	m.mu.Unlock()

	closeConn(stale)

	m.mu.Lock()
	defer m.mu.Unlock()
	// a concurrent Open or Reconnect owns the status now
	if gen != m.gen || m.status.State != models.StateClosing {
		return
	}
	m.setStateLocked(models.StateClosed)
	m.log.Info().Str("scope", m.status.Scope).Msg("channel closed")
}

// Status returns a copy of the current status
func (m *Manager) Status() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Changes signals status changes. Signals coalesce.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

func (m *Manager) liveLocked() bool {
	return m.status.State != models.StateClosed || m.status.ReconnectPending
}

func (m *Manager) connectLocked() {
	endpoint, err := EndpointFor(m.cfg.BaseURL, m.status.Scope)
	if err != nil {
		m.status.LastError = err.Error()
		m.status.ReconnectPending = false
		m.setStateLocked(models.StateClosed)
		m.log.Error().Err(err).Str("scope", m.status.Scope).Msg("cannot open channel")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	connID := uuid.NewString()

	m.status.ConnID = connID
	m.status.ReconnectPending = false
	m.setStateLocked(models.StateConnecting)

	m.log.Debug().Str("scope", m.status.Scope).Str("conn_id", connID).Str("endpoint", endpoint).Msg("dialing")

	go m.run(ctx, m.gen, connID, endpoint)
}

func (m *Manager) run(ctx context.Context, gen uint64, connID, endpoint string) {
	conn, err := m.dialer.Dial(ctx, endpoint, authHeader(m.cfg.Token))

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		m.failLocked(connID, err)
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.status.Attempts = 0
	m.status.LastError = ""
	m.setStateLocked(models.StateOpen)
	m.log.Info().Str("scope", m.status.Scope).Str("conn_id", connID).Msg("channel open")
	m.mu.Unlock()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(gen, connID, err)
			return
		}
		m.handleFrame(gen, frame)
	}
}

func (m *Manager) handleFrame(gen uint64, frame []byte) {
	msg, err := telemetry.Decode(frame)
	if err != nil {
		reason := metrics.DropMalformed
		if errors.Is(err, telemetry.ErrMissingType) {
			reason = metrics.DropNoType
		}
		metrics.RecordDrop(reason)
		m.log.Warn().Err(err).Int("len", len(frame)).Msg("dropping malformed frame")
		return
	}
	metrics.RecordFrame(msg.Type(), telemetry.Known(msg.Type()))

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		metrics.RecordDrop(metrics.DropStale)
		m.log.Debug().Str("type", msg.Type()).Str("warehouse_id", msg.Warehouse()).Msg("dropping frame from previous connection")
		return
	}
	m.sink.Ingest(msg)
}

func (m *Manager) handleReadError(gen uint64, connID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.status.ReconnectPending = false
		m.status.LastError = ""
		m.setStateLocked(models.StateClosed)
		m.log.Info().Str("scope", m.status.Scope).Str("conn_id", connID).Msg("server closed channel")
		return
	}

	m.failLocked(connID, err)
}

// failLocked handles an abnormal closure or a failed dial
func (m *Manager) failLocked(connID string, err error) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.status.LastError = err.Error()

	if m.cfg.MaxAttempts > 0 && m.status.Attempts >= m.cfg.MaxAttempts {
		m.status.ReconnectPending = false
		m.setStateLocked(models.StateClosed)
		m.log.Error().Err(err).
			Str("scope", m.status.Scope).
			Int("attempts", m.status.Attempts).
			Msg("giving up on channel")
		return
	}

	m.status.Attempts++
	m.status.ReconnectPending = true
	m.setStateLocked(models.StateClosed)
	metrics.RecordReconnect()

	gen := m.gen
	m.timer = m.clock.AfterFunc(m.cfg.ReconnectInterval, func() {
		m.reconnectAfterBackoff(gen)
	})

	m.log.Info().Err(err).
		Str("scope", m.status.Scope).
		Str("conn_id", connID).
		Int("attempt", m.status.Attempts).
		Dur("in", m.cfg.ReconnectInterval).
		Msg("channel lost, reconnecting")
}

func (m *Manager) reconnectAfterBackoff(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || !m.status.ReconnectPending {
		return
	}
	m.timer = nil
	m.connectLocked()
}

// teardownLocked stops every activity of the current generation. It
// returns the detached connection; the caller closes it with closeConn
// after releasing the lock.
func (m *Manager) teardownLocked() Conn {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	return conn
}

// closeConn sends a normal closure frame and closes conn. Frames still read
// from it carry a stale generation and are dropped.
func closeConn(conn Conn) {
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
	_ = conn.Close()
}

func (m *Manager) setStateLocked(state models.ReadyState) {
	m.status.State = state
	m.status.Since = m.clock.Now()
	metrics.SetConnectionState(state)

	select {
	case m.changes <- struct{}{}:
	default:
	}
}
