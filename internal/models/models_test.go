package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestShelf_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Shelf
	}{
		{`"B"`, "B"},
		{`3`, "3"},
		{`2.5`, "2.5"},
		{`null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var rec ScanRecord
			require.NoError(t, json.Unmarshal([]byte(`{"current_shelf":`+tt.in+`}`), &rec))
			assert.Equal(t, tt.want, rec.CurrentShelf)
		})
	}

	var s Shelf
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &s))
}

func TestMapProduct_StockLevel(t *testing.T) {
	tests := []struct {
		name string
		p    MapProduct
		want StockLevel
	}{
		{"no stock", MapProduct{}, StockUnknown},
		{"at minimum", MapProduct{Stock: intp(5), MinStock: intp(5), OptimalStock: intp(20)}, StockCritical},
		{"below optimal", MapProduct{Stock: intp(10), MinStock: intp(5), OptimalStock: intp(20)}, StockLow},
		{"healthy", MapProduct{Stock: intp(25), MinStock: intp(5), OptimalStock: intp(20)}, StockOK},
		{"no thresholds", MapProduct{Stock: intp(1)}, StockOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.StockLevel())
		})
	}
}

func TestWarehouse_Fill(t *testing.T) {
	assert.Equal(t, -1, Warehouse{ProductsCount: 10}.Fill())
	assert.Equal(t, 25, Warehouse{ProductsCount: 25, MaxProducts: 100}.Fill())
	assert.Equal(t, 100, Warehouse{ProductsCount: 300, MaxProducts: 100}.Fill())
}

func TestWarehouse_DisplayName(t *testing.T) {
	assert.Equal(t, "North", Warehouse{ID: "W1", Name: "North"}.DisplayName())
	assert.Equal(t, "W1", Warehouse{ID: "W1"}.DisplayName())
}

func TestRobotStatus_Active(t *testing.T) {
	assert.True(t, RobotIdle.Active())
	assert.True(t, RobotScanning.Active())
	assert.False(t, RobotCharging.Active())
	assert.False(t, RobotOffline.Active())
}

func TestReadyState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", ReadyState(42).String())
}

func TestConnectionStatus_Idle(t *testing.T) {
	assert.True(t, ConnectionStatus{State: StateClosed}.Idle())
	assert.False(t, ConnectionStatus{Scope: "W1", State: StateClosed}.Idle())
}
