package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/telemetry"
)

var errMockClosed = errors.New("mock connection closed")

// MockDialer simulates the warehouse backend for UI testing. Every
// connection first replays a full snapshot of all slices, then emits a
// random frame per Interval.
type MockDialer struct {
	Interval time.Duration
	// DropAfter fails the connection abnormally after this many ticks (0 = never)
	DropAfter int
	Seed      int64
}

// NewMockDialer creates a mock dialer ticking every interval
func NewMockDialer(interval time.Duration) *MockDialer {
	return &MockDialer{Interval: interval, Seed: time.Now().UnixNano()}
}

// Dial opens a simulated channel for the warehouse named by the last path segment
func (d *MockDialer) Dial(ctx context.Context, endpoint string, _ http.Header) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("mock dial: %w", err)
	}
	warehouseID, err := url.PathUnescape(path.Base(u.EscapedPath()))
	if err != nil {
		return nil, fmt.Errorf("mock dial: %w", err)
	}

	interval := d.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	c := &mockConn{
		warehouseID: warehouseID,
		rng:         rand.New(rand.NewSource(d.Seed)),
		ticker:      time.NewTicker(interval),
		dropAfter:   d.DropAfter,
		done:        make(chan struct{}),
	}
	c.seed()
	c.queue = c.snapshot()
	return c, nil
}

// WarehouseList returns the static warehouses shown in mock mode
func WarehouseList() []models.Warehouse {
	return []models.Warehouse{
		{ID: "WH-MSK-01", Name: "Moscow North", Address: "Dmitrovskoe sh. 157", ProductsCount: 1840, MaxProducts: 2500},
		{ID: "WH-SPB-02", Name: "Saint Petersburg Port", Address: "Kronshtadtskaya 9", ProductsCount: 960, MaxProducts: 1200},
		{ID: "WH-KZN-03", Name: "Kazan Hub", Address: "Tatarstan 45", ProductsCount: 310, MaxProducts: 1000},
	}
}

// mockConn is read by a single goroutine; only Close is called concurrently
type mockConn struct {
	warehouseID string
	rng         *rand.Rand
	ticker      *time.Ticker
	dropAfter   int
	ticks       int

	queue    [][]byte
	robots   []models.MapRobot
	products []models.MapProduct
	version  int64

	done      chan struct{}
	closeOnce sync.Once
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	if len(c.queue) > 0 {
		frame := c.queue[0]
		c.queue = c.queue[1:]
		return websocket.TextMessage, frame, nil
	}

	select {
	case <-c.done:
		return 0, nil, errMockClosed
	case <-c.ticker.C:
		c.ticks++
		if c.dropAfter > 0 && c.ticks >= c.dropAfter {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return websocket.TextMessage, c.next(), nil
	}
}

func (c *mockConn) WriteControl(int, []byte, time.Time) error {
	return nil
}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
	return nil
}

func (c *mockConn) seed() {
	statuses := []models.RobotStatus{models.RobotIdle, models.RobotScanning, models.RobotScanning, models.RobotCharging}
	for i := 0; i < 6; i++ {
		c.robots = append(c.robots, models.MapRobot{
			RobotID:      "RB-" + uuid.NewString()[:8],
			X:            c.rng.Intn(26),
			Y:            c.rng.Intn(50),
			BatteryLevel: float64(40 + c.rng.Intn(60)),
			Status:       statuses[i%len(statuses)],
			UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
		})
	}

	names := []string{"Router TP-Link AX50", "Switch D-Link 24p", "SFP module 10G", "Patch cord 2m", "Modem ZTE MF79", "Rack shelf 1U", "PoE injector", "Fiber splitter 1x8"}
	for i, name := range names {
		minStock := 10 + c.rng.Intn(10)
		optimal := minStock * 3
		stock := c.rng.Intn(optimal + 10)
		c.products = append(c.products, models.MapProduct{
			ID:           fmt.Sprintf("TEL-%04d", 1000+i),
			Name:         name,
			Category:     "network",
			WarehouseID:  c.warehouseID,
			CurrentZone:  string(rune('A' + i%4)),
			CurrentRow:   1 + c.rng.Intn(20),
			CurrentShelf: 1 + c.rng.Intn(10),
			Stock:        &stock,
			MinStock:     &minStock,
			OptimalStock: &optimal,
		})
	}
	c.version = 1
}

func (c *mockConn) env(kind string) telemetry.Envelope {
	return telemetry.NewEnvelope(kind, c.warehouseID)
}

func (c *mockConn) encode(msg telemetry.Message) []byte {
	frame, err := telemetry.Encode(msg)
	if err != nil {
		return []byte(`{}`)
	}
	return frame
}

func (c *mockConn) snapshot() [][]byte {
	msgs := []telemetry.Message{
		c.avgBattery(),
		c.activeRobots(),
		telemetry.Scanned24h{Envelope: c.env(telemetry.TypeScanned24h), Count: 200 + c.rng.Intn(800)},
		c.criticalUnique(),
		c.statusAvg(),
		c.activitySeries(),
		c.productScan(),
		c.positions(),
		telemetry.ProductSnapshot{Envelope: c.env(telemetry.TypeProductSnapshot), Items: append([]models.MapProduct(nil), c.products...)},
	}

	frames := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		frames = append(frames, c.encode(msg))
	}
	return frames
}

func (c *mockConn) next() []byte {
	switch n := c.rng.Intn(20); {
	case n == 0:
		return []byte(`{"type":`)
	case n == 1:
		return []byte(fmt.Sprintf(`{"type":"robot.teleported","warehouse_id":%q}`, c.warehouseID))
	case n <= 5:
		return c.encode(c.positionsDiff())
	case n == 6:
		return c.encode(telemetry.RobotPositionsKeepalive{
			Envelope:   c.env(telemetry.TypeRobotPositionsKeepalive),
			Version:    c.version,
			RobotCount: len(c.robots),
			Ts:         time.Now().UTC().Format(time.RFC3339),
		})
	case n == 7:
		return c.encode(c.avgBattery())
	case n == 8:
		return c.encode(c.activeRobots())
	case n == 9:
		return c.encode(telemetry.Scanned24h{Envelope: c.env(telemetry.TypeScanned24h), Count: 200 + c.rng.Intn(800)})
	case n == 10:
		return c.encode(c.criticalUnique())
	case n == 11:
		return c.encode(c.statusAvg())
	case n == 12:
		return c.encode(c.activitySeries())
	case n <= 15:
		return c.encode(c.productScan())
	case n <= 17:
		return c.encode(c.productChanged())
	case n == 18:
		return c.encode(c.positions())
	default:
		return c.encode(telemetry.ProductSnapshot{Envelope: c.env(telemetry.TypeProductSnapshot), Items: append([]models.MapProduct(nil), c.products...)})
	}
}

func (c *mockConn) avgBattery() telemetry.AvgBattery {
	var sum float64
	for _, r := range c.robots {
		sum += r.BatteryLevel
	}
	return telemetry.AvgBattery{
		Envelope:   c.env(telemetry.TypeAvgBattery),
		AvgBattery: sum / float64(len(c.robots)),
		Ts:         time.Now().UTC().Format(time.RFC3339),
	}
}

func (c *mockConn) activeRobots() telemetry.ActiveRobots {
	active := 0
	for _, r := range c.robots {
		if r.Status.Active() {
			active++
		}
	}
	return telemetry.ActiveRobots{Envelope: c.env(telemetry.TypeActiveRobots), ActiveRobots: active, Robots: len(c.robots)}
}

func (c *mockConn) criticalUnique() telemetry.CriticalUnique {
	critical := 0
	for _, p := range c.products {
		if p.StockLevel() == models.StockCritical {
			critical++
		}
	}
	return telemetry.CriticalUnique{Envelope: c.env(telemetry.TypeCriticalUnique), UniqueArticles: critical}
}

func (c *mockConn) statusAvg() telemetry.StatusAvg {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, p := range c.products {
		level := string(p.StockLevel())
		sums[level] += float64(*p.Stock)
		counts[level]++
	}

	msg := telemetry.StatusAvg{Envelope: c.env(telemetry.TypeStatusAvg), Avgs: map[string]float64{}}
	for level, sum := range sums {
		avg := sum / float64(counts[level])
		msg.Avgs[level] = avg
		if msg.Status == "" || avg > msg.MaxAvg {
			msg.Status = level
			msg.MaxAvg = avg
		}
	}
	return msg
}

func (c *mockConn) activitySeries() telemetry.ActivitySeries {
	const bucket = 10 * time.Minute
	end := time.Now().UTC().Truncate(bucket)

	points := make([]telemetry.SeriesPoint, 6)
	for i := range points {
		points[i] = telemetry.SeriesPoint{
			At:    end.Add(time.Duration(i-len(points)+1) * bucket),
			Value: float64(40 + c.rng.Intn(60)),
		}
	}
	return telemetry.ActivitySeries{
		Envelope:    c.env(telemetry.TypeActivitySeries),
		WindowMin:   60,
		BucketSec:   int(bucket / time.Second),
		Series:      points,
		Ts:          time.Now().UTC().Format(time.RFC3339),
		TotalRobots: len(c.robots),
	}
}

func (c *mockConn) productScan() telemetry.ProductScan {
	robot := c.robots[c.rng.Intn(len(c.robots))]
	n := 1 + c.rng.Intn(3)
	scans := make([]models.ScanRecord, 0, n)
	for i := 0; i < n; i++ {
		p := c.products[c.rng.Intn(len(c.products))]
		scans = append(scans, models.ScanRecord{
			ID:           uuid.NewString(),
			ProductID:    p.ID,
			RobotID:      robot.RobotID,
			WarehouseID:  c.warehouseID,
			CurrentZone:  p.CurrentZone,
			CurrentRow:   p.CurrentRow,
			CurrentShelf: models.Shelf(fmt.Sprint(p.CurrentShelf)),
			Name:         p.Name,
			Category:     p.Category,
			Article:      p.ID,
			Stock:        p.Stock,
			MinStock:     p.MinStock,
			OptimalStock: p.OptimalStock,
			Status:       string(p.StockLevel()),
			ScannedAt:    time.Now().UTC().Format(time.RFC3339),
		})
	}
	return telemetry.ProductScan{
		Envelope: c.env(telemetry.TypeProductScan),
		RobotID:  robot.RobotID,
		Scans:    scans,
		Reason:   "sweep",
		Ts:       time.Now().UTC().Format(time.RFC3339),
	}
}

func (c *mockConn) positions() telemetry.RobotPositions {
	return telemetry.RobotPositions{
		Envelope: c.env(telemetry.TypeRobotPositions),
		Robots:   append([]models.MapRobot(nil), c.robots...),
		Version:  c.version,
		Ts:       time.Now().UTC().Format(time.RFC3339),
	}
}

func (c *mockConn) positionsDiff() telemetry.RobotPositionsDiff {
	i := c.rng.Intn(len(c.robots))
	r := c.robots[i]
	r.X = clampInt(r.X+c.rng.Intn(3)-1, 0, 25)
	r.Y = clampInt(r.Y+c.rng.Intn(3)-1, 0, 49)
	r.BatteryLevel = clampFloat(r.BatteryLevel-c.rng.Float64(), 0, 100)
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	c.robots[i] = r

	base := c.version
	c.version++
	return telemetry.RobotPositionsDiff{
		Envelope:    c.env(telemetry.TypeRobotPositionsDiff),
		Version:     c.version,
		BaseVersion: base,
		Changed:     []models.MapRobot{r},
		Removed:     []string{},
		Ts:          r.UpdatedAt,
	}
}

func (c *mockConn) productChanged() telemetry.ProductChanged {
	i := c.rng.Intn(len(c.products))
	p := c.products[i]
	stock := *p.Stock + c.rng.Intn(11) - 5
	if stock < 0 {
		stock = 0
	}
	p.Stock = &stock
	c.products[i] = p
	return telemetry.ProductChanged{Envelope: c.env(telemetry.TypeProductChanged), Item: p}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
