// Package store merges realtime telemetry into the dashboard view model.
//
// A Store is bound to one warehouse scope at a time. Every message type has
// its own merge policy:
//
//   - scalar KPIs and full snapshots replace the slot wholesale
//   - the activity series is replaced only when its data changed, and is
//     capped to the most recent SeriesBound points
//   - product scans also feed a bounded newest-first history
//   - position diffs, keepalives and product change/delete events patch the
//     snapshot they refer to
//
// Reset clears everything and binds a new scope. Messages for any other
// warehouse are dropped.
package store

import (
	"reflect"
	"sync"
	"time"

	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/telemetry"
)

const (
	DefaultSeriesBound = 60
	DefaultScanHistory = 20
)

// Phase is the population state of the current scope
type Phase int

const (
	PhaseEmpty Phase = iota
	PhasePopulating
	PhaseLive
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhasePopulating:
		return "populating"
	case PhaseLive:
		return "live"
	}
	return "unknown"
}

// View is a read-only copy of the store. Slice contents are shared with the
// store and must not be modified.
type View struct {
	Scope string
	Phase Phase

	AvgBattery      *telemetry.AvgBattery
	ActiveRobots    *telemetry.ActiveRobots
	Scanned24h      *telemetry.Scanned24h
	CriticalUnique  *telemetry.CriticalUnique
	StatusAvg       *telemetry.StatusAvg
	ActivitySeries  *telemetry.ActivitySeries
	ProductScan     *telemetry.ProductScan
	RobotPositions  *telemetry.RobotPositions
	ProductSnapshot *telemetry.ProductSnapshot

	// ScanHistory holds recent scan batches, newest first
	ScanHistory []telemetry.ProductScan

	PositionsSeenAt time.Time
	LastUpdate      time.Time
}

// Empty reports whether no slot holds a value
func (v View) Empty() bool {
	return v.AvgBattery == nil && v.ActiveRobots == nil && v.Scanned24h == nil &&
		v.CriticalUnique == nil && v.StatusAvg == nil && v.ActivitySeries == nil &&
		v.ProductScan == nil && v.RobotPositions == nil && v.ProductSnapshot == nil &&
		len(v.ScanHistory) == 0
}

func (v View) complete() bool {
	return v.AvgBattery != nil && v.ActiveRobots != nil && v.Scanned24h != nil &&
		v.CriticalUnique != nil && v.StatusAvg != nil && v.ActivitySeries != nil &&
		v.ProductScan != nil && v.RobotPositions != nil && v.ProductSnapshot != nil
}

// Store is the telemetry aggregator. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	view     View
	received bool

	seriesBound  int
	historyLimit int
	now          func() time.Time
	log          logger.Logger

	updates chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithSeriesBound caps the stored activity series length
func WithSeriesBound(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.seriesBound = n
		}
	}
}

// WithScanHistory bounds the scan batch history
func WithScanHistory(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithLogger sets the diagnostics logger
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithClock overrides the time source for LastUpdate
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store with no scope bound
func New(opts ...Option) *Store {
	s := &Store{
		seriesBound:  DefaultSeriesBound,
		historyLimit: DefaultScanHistory,
		now:          time.Now,
		updates:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.WithComponent("store")
	}
	return s
}

// Reset clears every slot and binds the store to scope
func (s *Store) Reset(scope string) {
	s.mu.Lock()
	s.view = View{Scope: scope}
	s.received = false
	s.mu.Unlock()

	s.log.Debug().Str("scope", scope).Msg("store reset")
	s.notify()
}

// Ingest merges one message. It reports whether the view changed.
func (s *Store) Ingest(msg telemetry.Message) bool {
	if msg == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// an empty warehouse_id is accepted, the channel itself is scoped
	if wh := msg.Warehouse(); s.view.Scope == "" || (wh != "" && wh != s.view.Scope) {
		s.log.Debug().
			Str("scope", s.view.Scope).
			Str("warehouse_id", msg.Warehouse()).
			Str("type", msg.Type()).
			Msg("dropping message for another warehouse")
		return false
	}

	changed := s.apply(msg)
	if !changed {
		return false
	}

	s.received = true
	s.view.LastUpdate = s.now()
	s.view.Phase = s.phaseLocked()
	s.notify()
	return true
}

func (s *Store) apply(msg telemetry.Message) bool {
	switch m := msg.(type) {
	case telemetry.AvgBattery:
		s.view.AvgBattery = &m
	case telemetry.ActiveRobots:
		s.view.ActiveRobots = &m
	case telemetry.Scanned24h:
		s.view.Scanned24h = &m
	case telemetry.CriticalUnique:
		s.view.CriticalUnique = &m
	case telemetry.StatusAvg:
		s.view.StatusAvg = &m
	case telemetry.ActivitySeries:
		return s.applySeries(m)
	case telemetry.ProductScan:
		s.view.ProductScan = &m
		s.pushHistory(m)
	case telemetry.RobotPositions:
		s.view.RobotPositions = &m
		s.view.PositionsSeenAt = s.now()
	case telemetry.RobotPositionsDiff:
		return s.applyPositionsDiff(m)
	case telemetry.RobotPositionsKeepalive:
		return s.applyKeepalive(m)
	case telemetry.ProductSnapshot:
		s.view.ProductSnapshot = &m
	case telemetry.ProductChanged:
		return s.upsertProduct(m)
	case telemetry.ProductDeleted:
		return s.deleteProduct(m)
	default:
		s.log.Warn().Str("type", msg.Type()).Msg("ignoring unhandled message type")
		return false
	}
	return true
}

func (s *Store) applySeries(m telemetry.ActivitySeries) bool {
	if n := len(m.Series); n > s.seriesBound {
		m.Series = append([]telemetry.SeriesPoint(nil), m.Series[n-s.seriesBound:]...)
	}
	if cur := s.view.ActivitySeries; cur != nil && cur.SameData(m) {
		return false
	}
	s.view.ActivitySeries = &m
	return true
}

func (s *Store) pushHistory(m telemetry.ProductScan) {
	if len(s.view.ScanHistory) > 0 {
		head := s.view.ScanHistory[0]
		if head.RobotID == m.RobotID && reflect.DeepEqual(head.Scans, m.Scans) {
			return
		}
	}

	limit := len(s.view.ScanHistory) + 1
	if limit > s.historyLimit {
		limit = s.historyLimit
	}
	history := make([]telemetry.ProductScan, 0, limit)
	history = append(history, m)
	for _, batch := range s.view.ScanHistory {
		if len(history) == limit {
			break
		}
		history = append(history, batch)
	}
	s.view.ScanHistory = history
}

func (s *Store) applyPositionsDiff(m telemetry.RobotPositionsDiff) bool {
	cur := s.view.RobotPositions
	if cur == nil || cur.Version != m.BaseVersion {
		s.log.Debug().
			Int64("base_version", m.BaseVersion).
			Msg("positions diff does not match stored version, waiting for snapshot")
		return false
	}

	removed := make(map[string]struct{}, len(m.Removed))
	for _, id := range m.Removed {
		removed[id] = struct{}{}
	}
	changed := make(map[string]models.MapRobot, len(m.Changed))
	for _, r := range m.Changed {
		changed[r.RobotID] = r
	}

	robots := make([]models.MapRobot, 0, len(cur.Robots)+len(m.Changed))
	for _, r := range cur.Robots {
		if _, gone := removed[r.RobotID]; gone {
			continue
		}
		if next, ok := changed[r.RobotID]; ok {
			robots = append(robots, next)
			delete(changed, r.RobotID)
			continue
		}
		robots = append(robots, r)
	}
	for _, r := range m.Changed {
		if _, pending := changed[r.RobotID]; pending {
			robots = append(robots, r)
		}
	}

	s.view.RobotPositions = &telemetry.RobotPositions{
		Envelope: telemetry.NewEnvelope(telemetry.TypeRobotPositions, cur.WarehouseID),
		Robots:   robots,
		Version:  m.Version,
		Ts:       m.Ts,
	}
	s.view.PositionsSeenAt = s.now()
	return true
}

func (s *Store) applyKeepalive(m telemetry.RobotPositionsKeepalive) bool {
	cur := s.view.RobotPositions
	if cur == nil || cur.Version != m.Version {
		return false
	}
	s.view.PositionsSeenAt = s.now()
	return true
}

func (s *Store) upsertProduct(m telemetry.ProductChanged) bool {
	cur := s.view.ProductSnapshot
	if cur == nil {
		return false
	}

	items := make([]models.MapProduct, 0, len(cur.Items)+1)
	found := false
	for _, p := range cur.Items {
		if p.ID == m.Item.ID {
			items = append(items, m.Item)
			found = true
			continue
		}
		items = append(items, p)
	}
	if !found {
		items = append(items, m.Item)
	}

	s.view.ProductSnapshot = &telemetry.ProductSnapshot{Envelope: cur.Envelope, Items: items}
	return true
}

func (s *Store) deleteProduct(m telemetry.ProductDeleted) bool {
	cur := s.view.ProductSnapshot
	if cur == nil {
		return false
	}

	items := make([]models.MapProduct, 0, len(cur.Items))
	for _, p := range cur.Items {
		if p.ID != m.ProductID {
			items = append(items, p)
		}
	}
	if len(items) == len(cur.Items) {
		return false
	}

	s.view.ProductSnapshot = &telemetry.ProductSnapshot{Envelope: cur.Envelope, Items: items}
	return true
}

func (s *Store) phaseLocked() Phase {
	switch {
	case !s.received:
		return PhaseEmpty
	case s.view.complete():
		return PhaseLive
	default:
		return PhasePopulating
	}
}

// View returns a copy of the current view
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.view
	v.AvgBattery = clone(v.AvgBattery)
	v.ActiveRobots = clone(v.ActiveRobots)
	v.Scanned24h = clone(v.Scanned24h)
	v.CriticalUnique = clone(v.CriticalUnique)
	v.StatusAvg = clone(v.StatusAvg)
	v.ActivitySeries = clone(v.ActivitySeries)
	v.ProductScan = clone(v.ProductScan)
	v.RobotPositions = clone(v.RobotPositions)
	v.ProductSnapshot = clone(v.ProductSnapshot)
	return v
}

// Scope returns the warehouse the store is bound to
func (s *Store) Scope() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Scope
}

// Phase returns the population state of the current scope
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.Phase
}

// Updates signals after every change. Signals coalesce.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

func (s *Store) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
