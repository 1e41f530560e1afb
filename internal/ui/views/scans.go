package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/telemetry"
	"github.com/lazywh/lazywh/internal/ui/styles"
)

// ScansView displays the recent scan batches, newest first
type ScansView struct {
	viewport viewport.Model
	batches  []telemetry.ProductScan
	filter   string
	follow   bool
	width    int
	height   int
}

// NewScansView creates a new scans view
func NewScansView(width, height int) *ScansView {
	v := &ScansView{
		viewport: viewport.New(width, height),
		follow:   true,
		width:    width,
		height:   height,
	}
	v.updateContent()
	return v
}

// SetSize updates the view dimensions
func (v *ScansView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.viewport.Width = width
	v.viewport.Height = height
	v.updateContent()
}

// SetBatches replaces the displayed history
func (v *ScansView) SetBatches(batches []telemetry.ProductScan) {
	v.batches = batches
	v.updateContent()
}

// SetFilter sets the search filter
func (v *ScansView) SetFilter(filter string) {
	v.filter = filter
	v.updateContent()
}

// ClearFilter clears the search filter
func (v *ScansView) ClearFilter() {
	v.filter = ""
	v.updateContent()
}

// Filter returns the active filter
func (v *ScansView) Filter() string {
	return v.filter
}

// ToggleFollow toggles follow mode. Following keeps the newest batch in view.
func (v *ScansView) ToggleFollow() {
	v.SetFollow(!v.follow)
}

// SetFollow sets follow mode
func (v *ScansView) SetFollow(follow bool) {
	v.follow = follow
	if follow {
		v.viewport.GotoTop()
	}
}

// IsFollowing returns whether follow mode is enabled
func (v *ScansView) IsFollowing() bool {
	return v.follow
}

// Update forwards scrolling keys to the viewport
func (v *ScansView) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	if !v.viewport.AtTop() {
		v.follow = false
	}
	return cmd
}

func (v *ScansView) matches(batch telemetry.ProductScan, scan models.ScanRecord) bool {
	if v.filter == "" {
		return true
	}
	needle := strings.ToLower(v.filter)
	for _, field := range []string{scan.Name, scan.Article, scan.ProductID, scan.Category, batch.RobotID} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (v *ScansView) updateContent() {
	var lines []string

	for _, batch := range v.batches {
		var rows []string
		for _, scan := range batch.Scans {
			if !v.matches(batch, scan) {
				continue
			}
			rows = append(rows, v.renderScan(scan))
		}
		if len(rows) == 0 && v.filter != "" {
			continue
		}

		robot := batch.RobotID
		if robot == "" {
			robot = "unknown robot"
		}
		header := fmt.Sprintf("%s %s  %d scans", styles.Muted.Render(Clock(batch.Ts)), styles.HintKey.Render(robot), len(batch.Scans))
		if batch.Reason != "" {
			header += styles.Muted.Render(" (" + batch.Reason + ")")
		}
		lines = append(lines, header)
		lines = append(lines, rows...)
	}

	if len(lines) == 0 {
		if v.filter != "" {
			lines = append(lines, styles.Muted.Render(fmt.Sprintf("No scans match %q", v.filter)))
		} else {
			lines = append(lines, styles.Muted.Render("No scans yet"))
		}
	}

	v.viewport.SetContent(strings.Join(lines, "\n"))
	if v.follow {
		v.viewport.GotoTop()
	}
}

func (v *ScansView) renderScan(scan models.ScanRecord) string {
	level := models.MapProduct{Stock: scan.Stock, MinStock: scan.MinStock, OptimalStock: scan.OptimalStock}.StockLevel()
	status := scan.Status
	if status == "" {
		status = string(level)
	}

	stock := "-"
	if scan.Stock != nil {
		stock = fmt.Sprintf("%d", *scan.Stock)
	}

	place := fmt.Sprintf("%s-%d-%s", scan.CurrentZone, scan.CurrentRow, scan.CurrentShelf)
	return fmt.Sprintf("  %-12s %-28s %-10s %6s  %s",
		Truncate(scan.Article, 12),
		Truncate(scan.Name, 28),
		place,
		stock,
		styles.Stock(level).Render(status),
	)
}

// View renders the scans view
func (v *ScansView) View() string {
	return v.viewport.View()
}
