// Package telemetry defines the realtime wire messages pushed by the
// warehouse backend and classifies raw frames into them.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazywh/lazywh/internal/models"
)

// Message types sent over the warehouse channel
const (
	TypeAvgBattery              = "robot.avg_battery"
	TypeActiveRobots            = "robot.active_robots"
	TypeScanned24h              = "inventory.scanned_24h"
	TypeCriticalUnique          = "inventory.critical_unique"
	TypeStatusAvg               = "inventory.status_avg"
	TypeActivitySeries          = "robot.activity_series"
	TypeProductScan             = "product.scan"
	TypeRobotPositions          = "robot.positions"
	TypeRobotPositionsDiff      = "robot.positions.diff"
	TypeRobotPositionsKeepalive = "robot.positions.keepalive"
	TypeProductSnapshot         = "product.snapshot"
	TypeProductChanged          = "product.changed"
	TypeProductDeleted          = "product.deleted"
)

// Message is one decoded realtime frame. The set of implementations is closed.
type Message interface {
	Type() string
	Warehouse() string
	sealed()
}

// Envelope holds the fields every frame carries
type Envelope struct {
	Kind        string `json:"type"`
	WarehouseID string `json:"warehouse_id"`
}

func (e Envelope) Type() string      { return e.Kind }
func (e Envelope) Warehouse() string { return e.WarehouseID }
func (Envelope) sealed()             {}

// NewEnvelope returns an envelope for the given type and warehouse
func NewEnvelope(kind, warehouseID string) Envelope {
	return Envelope{Kind: kind, WarehouseID: warehouseID}
}

// AvgBattery is the average battery level of all robots in the warehouse
type AvgBattery struct {
	Envelope
	AvgBattery float64 `json:"avg_battery"`
	Ts         string  `json:"ts,omitempty"`
}

// ActiveRobots is the count of active robots out of all robots
type ActiveRobots struct {
	Envelope
	ActiveRobots int `json:"active_robots"`
	Robots       int `json:"robots"`
}

// Percent returns the active share in percent
func (a ActiveRobots) Percent() float64 {
	if a.Robots <= 0 {
		return 0
	}
	return float64(a.ActiveRobots) / float64(a.Robots) * 100
}

// Scanned24h is the number of scans over the last 24 hours
type Scanned24h struct {
	Envelope
	Count int `json:"count"`
}

// CriticalUnique is the number of distinct articles in critical stock
type CriticalUnique struct {
	Envelope
	UniqueArticles int `json:"unique_articles"`
}

// StatusAvg names the inventory status with the highest average stock
type StatusAvg struct {
	Envelope
	Status string             `json:"status"`
	MaxAvg float64            `json:"max_avg"`
	Avgs   map[string]float64 `json:"avgs,omitempty"`
}

// ActivitySeries is the robot activity percentage over a sliding window
type ActivitySeries struct {
	Envelope
	WindowMin   int           `json:"window_min"`
	BucketSec   int           `json:"bucket_sec"`
	Series      []SeriesPoint `json:"series"`
	Ts          string        `json:"ts,omitempty"`
	TotalRobots int           `json:"total_robots"`
}

// SameData reports whether two series carry identical data, ignoring ts
func (a ActivitySeries) SameData(b ActivitySeries) bool {
	if a.WindowMin != b.WindowMin || a.BucketSec != b.BucketSec || a.TotalRobots != b.TotalRobots {
		return false
	}
	if len(a.Series) != len(b.Series) {
		return false
	}
	for i := range a.Series {
		if !a.Series[i].Equal(b.Series[i]) {
			return false
		}
	}
	return true
}

// SeriesPoint is one bucket of a time series, encoded as [timestamp, value]
type SeriesPoint struct {
	At    time.Time
	Value float64
}

// Equal compares two points by instant and value
func (p SeriesPoint) Equal(o SeriesPoint) bool {
	return p.At.Equal(o.At) && p.Value == o.Value
}

// UnmarshalJSON decodes the [timestamp, value] tuple form
func (p *SeriesPoint) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("series point: want 2 elements, got %d", len(tuple))
	}

	var ts string
	if err := json.Unmarshal(tuple[0], &ts); err != nil {
		return fmt.Errorf("series point timestamp: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("series point timestamp: %w", err)
	}

	var value float64
	if err := json.Unmarshal(tuple[1], &value); err != nil {
		return fmt.Errorf("series point value: %w", err)
	}

	p.At = at
	p.Value = value
	return nil
}

// MarshalJSON encodes the point as a [timestamp, value] tuple
func (p SeriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.At.UTC().Format(time.RFC3339Nano), p.Value})
}

// ProductScan is the complete result of one robot sweep
type ProductScan struct {
	Envelope
	RobotID string              `json:"robot_id"`
	Scans   []models.ScanRecord `json:"scans"`
	Reason  string              `json:"reason,omitempty"`
	Ts      string              `json:"ts,omitempty"`
}

// RobotPositions is the full set of robots and where they are
type RobotPositions struct {
	Envelope
	Robots  []models.MapRobot `json:"robots"`
	Version int64             `json:"version,omitempty"`
	Ts      string            `json:"ts,omitempty"`
}

// RobotPositionsDiff patches a positions snapshot at BaseVersion up to Version
type RobotPositionsDiff struct {
	Envelope
	Version     int64             `json:"version"`
	BaseVersion int64             `json:"base_version"`
	Changed     []models.MapRobot `json:"changed"`
	Removed     []string          `json:"removed"`
	Ts          string            `json:"ts,omitempty"`
}

// RobotPositionsKeepalive says positions are unchanged at Version
type RobotPositionsKeepalive struct {
	Envelope
	Version    int64  `json:"version"`
	RobotCount int    `json:"robot_count"`
	Ts         string `json:"ts,omitempty"`
}

// ProductSnapshot is the full set of product placements
type ProductSnapshot struct {
	Envelope
	Items []models.MapProduct `json:"items"`
}

// ProductChanged carries one updated or created product
type ProductChanged struct {
	Envelope
	Item models.MapProduct `json:"item"`
}

// ProductDeleted names a product removed from the warehouse
type ProductDeleted struct {
	Envelope
	ProductID string `json:"product_id"`
}

// Unknown is a well-formed frame whose type this build does not handle
type Unknown struct {
	Envelope
	Raw json.RawMessage `json:"-"`
}
