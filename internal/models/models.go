package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// Warehouse is a warehouse as listed by the REST backend
type Warehouse struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Address       string `yaml:"address,omitempty" json:"address,omitempty"`
	ProductsCount int    `yaml:"products_count,omitempty" json:"products_count,omitempty"`
	MaxProducts   int    `yaml:"max_products,omitempty" json:"max_products,omitempty"`
}

// DisplayName returns the name, falling back to the id
func (w Warehouse) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.ID
}

// Fill returns the occupancy percentage (0-100), or -1 when capacity is unknown
func (w Warehouse) Fill() int {
	if w.MaxProducts <= 0 {
		return -1
	}
	pct := w.ProductsCount * 100 / w.MaxProducts
	if pct > 100 {
		pct = 100
	}
	return pct
}

// RobotStatus is the operational status reported for a robot
type RobotStatus string

const (
	RobotIdle     RobotStatus = "idle"
	RobotScanning RobotStatus = "scanning"
	RobotCharging RobotStatus = "charging"
	RobotOffline  RobotStatus = "offline"
)

// Active reports whether the robot counts towards the activity series
func (s RobotStatus) Active() bool {
	return s == RobotIdle || s == RobotScanning
}

// MapRobot is one robot as drawn on the warehouse map
type MapRobot struct {
	RobotID      string      `json:"robot_id"`
	X            int         `json:"x"`
	Y            int         `json:"y"`
	Shelf        string      `json:"shelf,omitempty"`
	BatteryLevel float64     `json:"battery_level"`
	Status       RobotStatus `json:"status"`
	UpdatedAt    string      `json:"updated_at,omitempty"`
}

// MapProduct is one product placement from a product snapshot
type MapProduct struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	WarehouseID  string `json:"warehouse_id,omitempty"`
	CurrentZone  string `json:"current_zone,omitempty"`
	CurrentRow   int    `json:"current_row"`
	CurrentShelf int    `json:"current_shelf"`
	Stock        *int   `json:"stock,omitempty"`
	MinStock     *int   `json:"min_stock,omitempty"`
	OptimalStock *int   `json:"optimal_stock,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// StockLevel classifies the product stock against its thresholds
func (p MapProduct) StockLevel() StockLevel {
	if p.Stock == nil {
		return StockUnknown
	}
	if p.MinStock != nil && *p.Stock <= *p.MinStock {
		return StockCritical
	}
	if p.OptimalStock != nil && *p.Stock < *p.OptimalStock {
		return StockLow
	}
	return StockOK
}

// StockLevel is a coarse stock classification used for coloring
type StockLevel string

const (
	StockOK       StockLevel = "OK"
	StockLow      StockLevel = "LOW"
	StockCritical StockLevel = "CRITICAL"
	StockUnknown  StockLevel = "UNKNOWN"
)

// ScanRecord is one product scan reported by a robot sweep
type ScanRecord struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	RobotID      string `json:"robot_id,omitempty"`
	WarehouseID  string `json:"warehouse_id,omitempty"`
	CurrentZone  string `json:"current_zone,omitempty"`
	CurrentRow   int    `json:"current_row"`
	CurrentShelf Shelf  `json:"current_shelf,omitempty"`
	Name         string `json:"name"`
	Category     string `json:"category,omitempty"`
	Article      string `json:"article,omitempty"`
	Stock        *int   `json:"stock,omitempty"`
	MinStock     *int   `json:"min_stock,omitempty"`
	OptimalStock *int   `json:"optimal_stock,omitempty"`
	Status       string `json:"status,omitempty"`
	ScannedAt    string `json:"scanned_at,omitempty"`
}

// Shelf is a shelf label. The backend sends either a letter or a number.
type Shelf string

// UnmarshalJSON accepts a JSON string, number or null
func (s *Shelf) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = Shelf(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*s = Shelf(strconv.FormatInt(i, 10))
		return nil
	}
	*s = Shelf(n.String())
	return nil
}

// ReadyState mirrors the WebSocket ready states surfaced to the UI
type ReadyState int

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing // deliberate close handshake in progress
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ConnectionStatus tracks the realtime channel for the current scope
type ConnectionStatus struct {
	Scope            string
	State            ReadyState
	ReconnectPending bool
	Attempts         int
	LastError        string
	ConnID           string
	Since            time.Time
}

// Idle reports whether no warehouse is selected
func (c ConnectionStatus) Idle() bool {
	return c.Scope == "" && c.State == StateClosed
}
