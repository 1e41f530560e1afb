package views

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/store"
	"github.com/lazywh/lazywh/internal/ui/styles"
)

// OverviewView displays the KPI summary of the selected warehouse
type OverviewView struct {
	width  int
	height int

	warehouse *models.Warehouse
	status    models.ConnectionStatus
	data      store.View
}

// NewOverviewView creates a new overview view
func NewOverviewView() *OverviewView {
	return &OverviewView{}
}

// SetSize sets the view dimensions
func (v *OverviewView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// SetData updates the view data
func (v *OverviewView) SetData(warehouse *models.Warehouse, status models.ConnectionStatus, data store.View) {
	v.warehouse = warehouse
	v.status = status
	v.data = data
}

// View renders the overview
func (v *OverviewView) View() string {
	var lines []string

	lines = append(lines, styles.HelpSection.Render("Warehouse"))
	if v.warehouse == nil {
		lines = append(lines, styles.Muted.Render("  No warehouse selected"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	lines = append(lines, "  Name:    "+v.warehouse.DisplayName())
	if v.warehouse.Address != "" {
		lines = append(lines, "  Address: "+v.warehouse.Address)
	}
	if fill := v.warehouse.Fill(); fill >= 0 {
		lines = append(lines, fmt.Sprintf("  Fill:    %d/%d products (%d%%)", v.warehouse.ProductsCount, v.warehouse.MaxProducts, fill))
	}

	lines = append(lines, styles.HelpSection.Render("Realtime"))
	lines = append(lines, "  Channel: "+v.status.State.String())
	lines = append(lines, "  Data:    "+v.data.Phase.String())
	if !v.data.LastUpdate.IsZero() {
		lines = append(lines, "  Updated: "+v.data.LastUpdate.Format("15:04:05"))
	}
	if v.status.LastError != "" {
		lines = append(lines, "  Error:   "+styles.Error.Render(Truncate(v.status.LastError, v.width-12)))
	}

	if v.data.Phase == store.PhaseEmpty {
		lines = append(lines, "", styles.Muted.Render("  Waiting for telemetry..."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, styles.HelpSection.Render("Robots"))
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
		card("Active robots", v.activeRobots()),
		card("Scanned 24h", v.scanned()),
		card("Critical articles", v.critical()),
	))
	if b := v.data.AvgBattery; b != nil {
		lines = append(lines, "  Avg battery "+BatteryBar(b.AvgBattery, v.width-16))
	} else {
		lines = append(lines, styles.Muted.Render("  Avg battery -"))
	}

	if s := v.data.StatusAvg; s != nil {
		lines = append(lines, styles.HelpSection.Render("Inventory"))
		lines = append(lines, fmt.Sprintf("  Top status: %s (avg stock %.1f)",
			styles.Stock(models.StockLevel(s.Status)).Render(s.Status), s.MaxAvg))

		keys := make([]string, 0, len(s.Avgs))
		for k := range s.Avgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("    %-10s %.1f", k, s.Avgs[k]))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (v *OverviewView) activeRobots() string {
	a := v.data.ActiveRobots
	if a == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", a.ActiveRobots, a.Robots, a.Percent())
}

func (v *OverviewView) scanned() string {
	if v.data.Scanned24h == nil {
		return "-"
	}
	return fmt.Sprintf("%d", v.data.Scanned24h.Count)
}

func (v *OverviewView) critical() string {
	if v.data.CriticalUnique == nil {
		return "-"
	}
	return fmt.Sprintf("%d", v.data.CriticalUnique.UniqueArticles)
}

func card(title, value string) string {
	return styles.Card.Render(lipgloss.JoinVertical(lipgloss.Left,
		styles.CardTitle.Render(title),
		styles.CardValue.Render(value),
	))
}
