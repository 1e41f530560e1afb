package views

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lazywh/lazywh/internal/ui/styles"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Age converts a duration to a short human readable age
func Age(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// Truncate shortens s to maxLen runes with an ellipsis
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Clock formats an RFC3339 timestamp as HH:MM:SS, or returns it unchanged
func Clock(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.Local().Format("15:04:05")
	}
	return ts
}

// BatteryBar renders a charge level bar. Low charge is highlighted.
func BatteryBar(level float64, width int) string {
	if width < 10 {
		width = 10
	}

	barWidth := width - 7 // "[" + "]" + " XX%"
	percent := int(math.Round(level))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := percent * barWidth / 100
	empty := barWidth - filled

	style := styles.ProgressBarFilled
	switch {
	case percent < 20:
		style = styles.ProgressBarCritical
	case percent < 50:
		style = styles.ProgressBarWarning
	}

	return fmt.Sprintf("[%s%s] %3d%%",
		style.Render(strings.Repeat("█", filled)),
		styles.Muted.Render(strings.Repeat("░", empty)),
		percent)
}

// Sparkline maps values in [0, max] onto block characters, cellWidth per value
func Sparkline(values []float64, max float64, cellWidth int) string {
	if len(values) == 0 {
		return ""
	}
	if cellWidth < 1 {
		cellWidth = 1
	}
	if max <= 0 {
		max = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / max * float64(len(sparkBlocks)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkBlocks) {
			idx = len(sparkBlocks) - 1
		}
		b.WriteString(strings.Repeat(string(sparkBlocks[idx]), cellWidth))
	}
	return b.String()
}
