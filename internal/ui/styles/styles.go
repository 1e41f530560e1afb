package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/lazywh/lazywh/internal/models"
)

// Colors
var (
	ColorPrimary    = lipgloss.Color("#5DADE2")
	ColorSecondary  = lipgloss.Color("#82E0AA")
	ColorWarning    = lipgloss.Color("#F4D03F")
	ColorError      = lipgloss.Color("#E74C3C")
	ColorMuted      = lipgloss.Color("#7F8C8D")
	ColorForeground = lipgloss.Color("#ECF0F1")
	ColorLive       = lipgloss.Color("#2ECC71")
	ColorPending    = lipgloss.Color("#F39C12")
	ColorDown       = lipgloss.Color("#E74C3C")
	ColorDarkBg     = lipgloss.Color("#2C3E50")
	ColorAltRowBg   = lipgloss.Color("#1A252F")
)

// Text styles
var (
	Muted = lipgloss.NewStyle().Foreground(ColorMuted)

	Warn = lipgloss.NewStyle().Foreground(ColorWarning)

	Error = lipgloss.NewStyle().Foreground(ColorError)
)

// Pane styles
var (
	PaneBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted)

	FocusedPaneBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 1)
)

// Tab styles
var (
	ActiveTab = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorDarkBg).
			Padding(0, 2)

	InactiveTab = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 2)
)

// Connection dot styles for the warehouse list
var (
	StatusOK = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorLive)

	StatusDegraded = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPending)

	StatusDown = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDown)
)

// Bottom bar styles
var (
	BottomBar = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Background(ColorDarkBg).
			Padding(0, 1)

	HintKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary)

	HintDesc = lipgloss.NewStyle().
			Foreground(ColorMuted)

	InputPrompt = lipgloss.NewStyle().Foreground(ColorPrimary)
)

// Help overlay styles
var (
	HelpOverlay = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorPrimary).
			Padding(1, 2)

	HelpTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	HelpSection = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary).
			MarginTop(1)
)

// Warehouse list styles
var (
	SelectedItem = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Background(ColorDarkBg)

	UnselectedItem = lipgloss.NewStyle().
			Foreground(ColorForeground)
)

// Table styles
var (
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	TableRowAlt = lipgloss.NewStyle().
			Foreground(ColorForeground).
			Background(ColorAltRowBg)
)

// Bar and sparkline styles
var (
	ProgressBarFilled = lipgloss.NewStyle().
				Foreground(ColorPrimary)

	ProgressBarWarning = lipgloss.NewStyle().
				Foreground(ColorWarning)

	ProgressBarCritical = lipgloss.NewStyle().
				Foreground(ColorError)

	Sparkline = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

// Card styles for KPIs
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1)

	CardTitle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	CardValue = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)
)

// Badge styles
var (
	BadgeOK = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(ColorLive).
		Padding(0, 1)

	BadgeWarning = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#000000")).
			Background(ColorPending).
			Padding(0, 1)

	BadgeError = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorDown).
			Padding(0, 1)

	BadgeMuted = lipgloss.NewStyle().
			Foreground(ColorForeground).
			Background(ColorMuted).
			Padding(0, 1)
)

// Stock returns the text style for a stock level
func Stock(level models.StockLevel) lipgloss.Style {
	switch level {
	case models.StockCritical:
		return Error
	case models.StockLow:
		return Warn
	case models.StockOK:
		return StatusOK
	}
	return Muted
}

// RobotStatus returns the text style for a robot status
func RobotStatus(status models.RobotStatus) lipgloss.Style {
	switch status {
	case models.RobotScanning:
		return StatusOK
	case models.RobotIdle:
		return lipgloss.NewStyle().Foreground(ColorForeground)
	case models.RobotCharging:
		return StatusDegraded
	}
	return Muted
}
