package gateway

import "github.com/lazywh/lazywh/internal/models"

// StatusMsg is sent when the realtime channel status changes
type StatusMsg struct {
	Status models.ConnectionStatus
}

// StoreUpdatedMsg is sent when the telemetry store has new data
type StoreUpdatedMsg struct{}

// WarehousesMsg is sent when the warehouse list has been fetched
type WarehousesMsg struct {
	Warehouses []models.Warehouse
	Err        error
}
