package views

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/lazywh/lazywh/internal/telemetry"
	"github.com/lazywh/lazywh/internal/ui/styles"
)

// ActivityView draws the robot activity series as a sparkline
type ActivityView struct {
	width  int
	height int
	series *telemetry.ActivitySeries
}

// NewActivityView creates a new activity view
func NewActivityView() *ActivityView {
	return &ActivityView{}
}

// SetSize sets the view dimensions
func (v *ActivityView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// SetData updates the series
func (v *ActivityView) SetData(series *telemetry.ActivitySeries) {
	v.series = series
}

// View renders the activity chart
func (v *ActivityView) View() string {
	if v.series == nil || len(v.series.Series) == 0 {
		return styles.Muted.Render("No activity data yet")
	}

	s := v.series
	values := make([]float64, len(s.Series))
	lo, hi := s.Series[0].Value, s.Series[0].Value
	for i, p := range s.Series {
		values[i] = p.Value
		if p.Value < lo {
			lo = p.Value
		}
		if p.Value > hi {
			hi = p.Value
		}
	}

	cell := (v.width - 4) / len(values)
	if cell > 6 {
		cell = 6
	}

	first := s.Series[0].At.Local().Format("15:04")
	last := s.Series[len(s.Series)-1].At.Local().Format("15:04")

	lines := []string{
		styles.HelpSection.Render(fmt.Sprintf("Robot activity, last %d min (%d s buckets)", s.WindowMin, s.BucketSec)),
		"",
		"  " + styles.Sparkline.Render(Sparkline(values, 100, cell)),
		"  " + styles.Muted.Render(fmt.Sprintf("%s → %s", first, last)),
		"",
		fmt.Sprintf("  Now: %s   Min: %.0f%%   Max: %.0f%%   Robots: %d",
			styles.CardValue.Render(fmt.Sprintf("%.0f%%", values[len(values)-1])), lo, hi, s.TotalRobots),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
