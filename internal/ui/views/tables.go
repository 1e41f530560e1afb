package views

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/telemetry"
	"github.com/lazywh/lazywh/internal/ui/styles"
)

// RobotsView lists robot positions
type RobotsView struct {
	width  int
	height int

	positions *telemetry.RobotPositions
	seenAt    time.Time
	now       time.Time
}

// NewRobotsView creates a new robots view
func NewRobotsView() *RobotsView {
	return &RobotsView{}
}

// SetSize sets the view dimensions
func (v *RobotsView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// SetData updates the positions and when they were last confirmed
func (v *RobotsView) SetData(positions *telemetry.RobotPositions, seenAt, now time.Time) {
	v.positions = positions
	v.seenAt = seenAt
	v.now = now
}

// View renders the robots table
func (v *RobotsView) View() string {
	if v.positions == nil {
		return styles.Muted.Render("No robot positions yet")
	}

	robots := append([]models.MapRobot(nil), v.positions.Robots...)
	sort.Slice(robots, func(i, j int) bool { return robots[i].RobotID < robots[j].RobotID })

	lines := []string{
		styles.Muted.Render(fmt.Sprintf("%d robots, version %d, confirmed %s ago",
			len(robots), v.positions.Version, Age(v.now.Sub(v.seenAt)))),
		"",
		styles.TableHeader.Render(fmt.Sprintf("  %-12s %4s %4s %-6s %-10s %s", "Robot", "X", "Y", "Shelf", "Status", "Battery")),
	}

	rows := clampRows(len(robots), v.height-4)
	for i, r := range robots[:rows] {
		row := fmt.Sprintf("  %-12s %4d %4d %-6s %s %s",
			Truncate(r.RobotID, 12),
			r.X,
			r.Y,
			Truncate(r.Shelf, 6),
			styles.RobotStatus(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
			BatteryBar(r.BatteryLevel, 24),
		)
		if i%2 == 1 {
			row = styles.TableRowAlt.Render(row)
		}
		lines = append(lines, row)
	}
	if len(robots) > rows {
		lines = append(lines, styles.Muted.Render(fmt.Sprintf("  ... and %d more robots", len(robots)-rows)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// ProductsView lists product placements, critical stock first
type ProductsView struct {
	width    int
	height   int
	snapshot *telemetry.ProductSnapshot
}

// NewProductsView creates a new products view
func NewProductsView() *ProductsView {
	return &ProductsView{}
}

// SetSize sets the view dimensions
func (v *ProductsView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// SetData updates the snapshot
func (v *ProductsView) SetData(snapshot *telemetry.ProductSnapshot) {
	v.snapshot = snapshot
}

var levelRank = map[models.StockLevel]int{
	models.StockCritical: 0,
	models.StockLow:      1,
	models.StockOK:       2,
	models.StockUnknown:  3,
}

// View renders the products table
func (v *ProductsView) View() string {
	if v.snapshot == nil {
		return styles.Muted.Render("No product snapshot yet")
	}

	products := append([]models.MapProduct(nil), v.snapshot.Items...)
	sort.SliceStable(products, func(i, j int) bool {
		ri, rj := levelRank[products[i].StockLevel()], levelRank[products[j].StockLevel()]
		if ri != rj {
			return ri < rj
		}
		return products[i].Name < products[j].Name
	})

	lines := []string{
		styles.Muted.Render(fmt.Sprintf("%d products", len(products))),
		"",
		styles.TableHeader.Render(fmt.Sprintf("  %-10s %-28s %-8s %12s  %s", "ID", "Name", "Place", "Stock", "Level")),
	}

	rows := clampRows(len(products), v.height-4)
	for i, p := range products[:rows] {
		level := p.StockLevel()
		row := fmt.Sprintf("  %-10s %-28s %-8s %12s  %s",
			Truncate(p.ID, 10),
			Truncate(p.Name, 28),
			fmt.Sprintf("%s-%d-%d", p.CurrentZone, p.CurrentRow, p.CurrentShelf),
			stockRange(p),
			styles.Stock(level).Render(string(level)),
		)
		if i%2 == 1 {
			row = styles.TableRowAlt.Render(row)
		}
		lines = append(lines, row)
	}
	if len(products) > rows {
		lines = append(lines, styles.Muted.Render(fmt.Sprintf("  ... and %d more products", len(products)-rows)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func stockRange(p models.MapProduct) string {
	if p.Stock == nil {
		return "-"
	}
	s := fmt.Sprintf("%d", *p.Stock)
	if p.MinStock != nil && p.OptimalStock != nil {
		s += fmt.Sprintf(" (%d/%d)", *p.MinStock, *p.OptimalStock)
	}
	return s
}

func clampRows(n, max int) int {
	if max < 0 {
		max = 0
	}
	if n < max {
		return n
	}
	return max
}
