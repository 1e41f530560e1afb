package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lazywh/lazywh/internal/config"
	"github.com/lazywh/lazywh/internal/gateway"
	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/models"
	"github.com/lazywh/lazywh/internal/state"
	"github.com/lazywh/lazywh/internal/store"
	"github.com/lazywh/lazywh/internal/ui/keys"
	"github.com/lazywh/lazywh/internal/ui/styles"
	"github.com/lazywh/lazywh/internal/ui/views"
)

// AppMode represents the current mode of the application
type AppMode int

const (
	ModeNormal AppMode = iota
	ModeHelp
	ModeFilter
)

// FocusedPane represents which pane has focus
type FocusedPane int

const (
	PaneWarehouses FocusedPane = iota
	PaneDetails
)

// Tab represents the available detail tabs
type Tab int

const (
	TabOverview Tab = iota
	TabActivity
	TabRobots
	TabProducts
	TabScans
)

var allTabs = []Tab{TabOverview, TabActivity, TabRobots, TabProducts, TabScans}

func (t Tab) String() string {
	names := []string{"Overview", "Activity", "Robots", "Products", "Scans"}
	if int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// Channel is the realtime connection to one warehouse at a time
type Channel interface {
	Open(warehouseID string)
	Reconnect()
	Close()
	Status() models.ConnectionStatus
	Changes() <-chan struct{}
}

// Telemetry is the read side of the telemetry store
type Telemetry interface {
	View() store.View
	Updates() <-chan struct{}
}

// WarehouseSource lists the warehouses the user can pick from
type WarehouseSource interface {
	ListWarehouses(ctx context.Context) ([]models.Warehouse, error)
}

// Deps are the collaborators the app drives
type Deps struct {
	Channel    Channel
	Telemetry  Telemetry
	Warehouses WarehouseSource
	MockMode   bool
}

// App is the main application model
type App struct {
	config *config.Config
	deps   Deps
	log    logger.Logger

	// UI state
	mode        AppMode
	focusedPane FocusedPane
	activeTab   Tab
	width       int
	height      int

	keys keys.KeyMap

	// Sub-models
	filterInput  textinput.Model
	overviewView *views.OverviewView
	activityView *views.ActivityView
	robotsView   *views.RobotsView
	productsView *views.ProductsView
	scansView    *views.ScansView

	// Warehouses
	warehouses   []models.Warehouse
	selected     int
	preferred    string
	warehouseErr string

	// Realtime state
	status models.ConnectionStatus
	data   store.View
	now    func() time.Time
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, uiState *state.State, deps Deps) *App {
	ti := textinput.New()
	ti.Placeholder = "name, article, robot..."
	ti.CharLimit = state.MaxFilterLen
	uiState.Clamp(len(allTabs))

	app := &App{
		config:       cfg,
		deps:         deps,
		log:          logger.WithComponent("ui"),
		mode:         ModeNormal,
		focusedPane:  FocusedPane(uiState.FocusedPane),
		activeTab:    Tab(uiState.ActiveTab),
		keys:         keys.DefaultKeyMap(),
		filterInput:  ti,
		overviewView: views.NewOverviewView(),
		activityView: views.NewActivityView(),
		robotsView:   views.NewRobotsView(),
		productsView: views.NewProductsView(),
		scansView:    views.NewScansView(0, 0),
		selected:     -1,
		preferred:    uiState.SelectedWarehouse,
		now:          time.Now,
	}
	if uiState.ScanFilter != "" {
		app.scansView.SetFilter(uiState.ScanFilter)
	}
	app.scansView.SetFollow(uiState.ScanFollow)

	if deps.Channel != nil {
		app.status = deps.Channel.Status()
	}
	return app
}

// GetState returns the current UI state for persistence
func (a *App) GetState() *state.State {
	return &state.State{
		SelectedWarehouse: a.selectedID(),
		ActiveTab:         int(a.activeTab),
		FocusedPane:       int(a.focusedPane),
		ScanFilter:        a.scansView.Filter(),
		ScanFollow:        a.scansView.IsFollowing(),
	}
}

// RefreshTickMsg triggers a periodic warehouse list refresh
type RefreshTickMsg struct{}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.fetchWarehouses(),
		a.waitForStatus(),
		a.waitForStore(),
		a.scheduleRefresh(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewSizes()

	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case gateway.WarehousesMsg:
		a.applyWarehouses(msg)

	case gateway.StatusMsg:
		a.status = msg.Status
		cmds = append(cmds, a.waitForStatus())

	case gateway.StoreUpdatedMsg:
		a.data = a.deps.Telemetry.View()
		a.scansView.SetBatches(a.data.ScanHistory)
		cmds = append(cmds, a.waitForStore())

	case RefreshTickMsg:
		cmds = append(cmds, a.fetchWarehouses(), a.scheduleRefresh())

	default:
		if a.activeTab == TabScans {
			cmds = append(cmds, a.scansView.Update(msg))
		}
	}

	return a, tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if a.mode == ModeHelp {
		if key.Matches(msg, a.keys.Escape) || key.Matches(msg, a.keys.Help) || msg.String() == "q" {
			a.mode = ModeNormal
		}
		return nil
	}

	if a.mode == ModeFilter {
		switch {
		case key.Matches(msg, a.keys.Escape):
			a.mode = ModeNormal
			a.filterInput.Reset()
			a.scansView.ClearFilter()
			return nil
		case key.Matches(msg, a.keys.Enter):
			a.mode = ModeNormal
			a.scansView.SetFilter(strings.TrimSpace(a.filterInput.Value()))
			return nil
		}
		var cmd tea.Cmd
		a.filterInput, cmd = a.filterInput.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		return tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.mode = ModeHelp

	case key.Matches(msg, a.keys.Filter):
		a.mode = ModeFilter
		a.activeTab = TabScans
		a.filterInput.SetValue(a.scansView.Filter())
		a.filterInput.Focus()
		return textinput.Blink

	case key.Matches(msg, a.keys.Tab), key.Matches(msg, a.keys.ShiftTab):
		if a.focusedPane == PaneWarehouses {
			a.focusedPane = PaneDetails
		} else {
			a.focusedPane = PaneWarehouses
		}

	case key.Matches(msg, a.keys.Tab1):
		a.activeTab = TabOverview
	case key.Matches(msg, a.keys.Tab2):
		a.activeTab = TabActivity
	case key.Matches(msg, a.keys.Tab3):
		a.activeTab = TabRobots
	case key.Matches(msg, a.keys.Tab4):
		a.activeTab = TabProducts
	case key.Matches(msg, a.keys.Tab5):
		a.activeTab = TabScans

	case key.Matches(msg, a.keys.ToggleFollow):
		a.scansView.ToggleFollow()

	case key.Matches(msg, a.keys.Reconnect):
		if a.selectedID() != "" {
			a.deps.Channel.Reconnect()
		}

	case key.Matches(msg, a.keys.CloseChannel):
		a.deps.Channel.Close()

	case key.Matches(msg, a.keys.Refresh):
		return a.fetchWarehouses()

	case key.Matches(msg, a.keys.Up):
		if a.focusedPane == PaneWarehouses {
			a.selectIndex(a.selected - 1)
			return nil
		}
		return a.scrollScans(msg)

	case key.Matches(msg, a.keys.Down):
		if a.focusedPane == PaneWarehouses {
			a.selectIndex(a.selected + 1)
			return nil
		}
		return a.scrollScans(msg)

	case key.Matches(msg, a.keys.Enter):
		if a.focusedPane == PaneWarehouses {
			a.focusedPane = PaneDetails
			// reopens a channel closed with x; a no-op while live
			if id := a.selectedID(); id != "" {
				a.deps.Channel.Open(id)
			}
		}

	case key.Matches(msg, a.keys.PageUp), key.Matches(msg, a.keys.PageDown):
		return a.scrollScans(msg)

	case key.Matches(msg, a.keys.Home):
		if a.activeTab == TabScans {
			a.scansView.SetFollow(true)
		}

	case key.Matches(msg, a.keys.End):
		return a.scrollScans(msg)
	}

	return nil
}

func (a *App) scrollScans(msg tea.KeyMsg) tea.Cmd {
	if a.activeTab != TabScans {
		return nil
	}
	return a.scansView.Update(msg)
}

// applyWarehouses replaces the list and keeps the selection by id
func (a *App) applyWarehouses(msg gateway.WarehousesMsg) {
	if msg.Err != nil {
		a.warehouseErr = msg.Err.Error()
		a.log.Warn().Err(msg.Err).Msg("Failed to list warehouses")
		if len(msg.Warehouses) == 0 {
			return
		}
	} else {
		a.warehouseErr = ""
	}

	current := a.selectedID()
	if current == "" {
		current = a.preferred
	}

	a.warehouses = msg.Warehouses
	a.selected = -1
	for i, w := range a.warehouses {
		if w.ID == current {
			a.selected = i
			break
		}
	}
	if a.selected < 0 && len(a.warehouses) > 0 {
		a.selected = 0
	}
	a.openSelected()
}

func (a *App) selectIndex(i int) {
	if i < 0 || i >= len(a.warehouses) || i == a.selected {
		return
	}
	a.selected = i
	a.openSelected()
}

// openSelected points the channel at the selected warehouse
func (a *App) openSelected() {
	id := a.selectedID()
	if a.deps.Channel.Status().Scope == id {
		return
	}
	a.log.Info().Str("warehouse_id", id).Msg("Switching warehouse")
	a.deps.Channel.Open(id)
	a.data = a.deps.Telemetry.View()
	a.scansView.SetBatches(a.data.ScanHistory)
}

func (a *App) selectedID() string {
	if w := a.selectedWarehouse(); w != nil {
		return w.ID
	}
	return ""
}

func (a *App) selectedWarehouse() *models.Warehouse {
	if a.selected < 0 || a.selected >= len(a.warehouses) {
		return nil
	}
	return &a.warehouses[a.selected]
}

// View implements tea.Model
func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	if a.mode == ModeHelp {
		return a.renderHelp()
	}

	return a.renderMainLayout()
}

func (a *App) renderMainLayout() string {
	leftWidth := 28
	rightWidth := a.width - leftWidth - 4
	contentHeight := a.height - 4

	leftPane := a.renderWarehousesPane(leftWidth, contentHeight)
	rightPane := a.renderDetailsPane(rightWidth, contentHeight)
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	bottomBar := a.renderBottomBar()

	if a.mode == ModeFilter {
		return lipgloss.JoinVertical(lipgloss.Left, mainContent, a.renderFilterBar(), bottomBar)
	}
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, bottomBar)
}

func (a *App) renderWarehousesPane(width, height int) string {
	style := styles.PaneBorder
	if a.focusedPane == PaneWarehouses {
		style = styles.FocusedPaneBorder
	}
	style = style.Width(width).Height(height)

	title := styles.TitleStyle.Render("Warehouses")

	var lines []string
	switch {
	case len(a.warehouses) == 0 && a.warehouseErr != "":
		lines = append(lines, styles.Error.Render(views.Truncate(a.warehouseErr, width-2)))
	case len(a.warehouses) == 0:
		lines = append(lines, styles.Muted.Render("Loading warehouses..."))
	default:
		for i, w := range a.warehouses {
			badge := styles.Muted.Render("·")
			if i == a.selected {
				badge = a.connectionDot()
			}

			line := badge + " " + views.Truncate(w.DisplayName(), width-9)
			if fill := w.Fill(); fill >= 0 {
				line += styles.Muted.Render(fmt.Sprintf(" %d%%", fill))
			}

			if i == a.selected {
				lines = append(lines, styles.SelectedItem.Render(line))
			} else {
				lines = append(lines, styles.UnselectedItem.Render(line))
			}
		}
		if a.warehouseErr != "" {
			lines = append(lines, "", styles.Warn.Render("stale: "+views.Truncate(a.warehouseErr, width-9)))
		}
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func (a *App) connectionDot() string {
	switch {
	case a.status.State == models.StateOpen:
		return styles.StatusOK.Render("●")
	case a.status.State == models.StateConnecting, a.status.ReconnectPending:
		return styles.StatusDegraded.Render("●")
	}
	return styles.StatusDown.Render("●")
}

func (a *App) renderDetailsPane(width, height int) string {
	style := styles.PaneBorder
	if a.focusedPane == PaneDetails {
		style = styles.FocusedPaneBorder
	}
	style = style.Width(width).Height(height)

	tabs := a.renderTabs()

	var content string
	switch a.activeTab {
	case TabOverview:
		a.overviewView.SetData(a.selectedWarehouse(), a.status, a.data)
		content = a.overviewView.View()
	case TabActivity:
		a.activityView.SetData(a.data.ActivitySeries)
		content = a.activityView.View()
	case TabRobots:
		a.robotsView.SetData(a.data.RobotPositions, a.data.PositionsSeenAt, a.now())
		content = a.robotsView.View()
	case TabProducts:
		a.productsView.SetData(a.data.ProductSnapshot)
		content = a.productsView.View()
	case TabScans:
		content = a.scansView.View()
	default:
		content = styles.Muted.Render("Tab not implemented")
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, tabs, content))
}

func (a *App) renderTabs() string {
	var tabs []string
	for _, t := range allTabs {
		if t == a.activeTab {
			tabs = append(tabs, styles.ActiveTab.Render(t.String()))
		} else {
			tabs = append(tabs, styles.InactiveTab.Render(t.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a *App) renderBottomBar() string {
	hints := []string{
		a.connectionBadge(),
		styles.HintKey.Render("q") + styles.HintDesc.Render(":quit"),
		styles.HintKey.Render("?") + styles.HintDesc.Render(":help"),
		styles.HintKey.Render("1-5") + styles.HintDesc.Render(":tabs"),
		styles.HintKey.Render("r") + styles.HintDesc.Render(":reconnect"),
		styles.HintKey.Render("x") + styles.HintDesc.Render(":close"),
	}
	if a.activeTab == TabScans {
		follow := "off"
		if a.scansView.IsFollowing() {
			follow = "on"
		}
		hints = append(hints, styles.HintKey.Render("f")+styles.HintDesc.Render(":follow "+follow))
	}
	if a.status.LastError != "" {
		hints = append(hints, styles.Error.Render(views.Truncate(a.status.LastError, 40)))
	}

	return styles.BottomBar.Width(a.width).Render(lipgloss.JoinHorizontal(lipgloss.Left, joinWithSeparator(hints, "  ")...))
}

// connectionBadge summarizes the channel state
func (a *App) connectionBadge() string {
	s := a.status
	switch {
	case s.Idle() && !s.ReconnectPending:
		if a.deps.MockMode {
			return styles.BadgeMuted.Render("IDLE (mock)")
		}
		return styles.BadgeMuted.Render("IDLE")
	case s.State == models.StateOpen:
		return styles.BadgeOK.Render("LIVE")
	case s.State == models.StateConnecting:
		return styles.BadgeWarning.Render("CONNECTING")
	case s.ReconnectPending:
		return styles.BadgeWarning.Render(fmt.Sprintf("RECONNECTING (%d)", s.Attempts))
	case s.State == models.StateClosing:
		return styles.BadgeWarning.Render("CLOSING")
	}
	return styles.BadgeError.Render("CLOSED")
}

func (a *App) renderFilterBar() string {
	return styles.InputPrompt.Render("Filter scans: ") + a.filterInput.View()
}

func (a *App) renderHelp() string {
	help := styles.HelpTitle.Render("lazywh Help") + "\n\n"

	help += styles.HelpSection.Render("Navigation") + "\n"
	help += "  tab/shift+tab  Switch between panes\n"
	help += "  j/k or arrows  Pick warehouse / scroll scans\n"
	help += "  enter          Open warehouse\n"
	help += "  esc            Close modal/cancel\n\n"

	help += styles.HelpSection.Render("Tabs") + "\n"
	help += "  1  Overview    - KPIs and channel state\n"
	help += "  2  Activity    - Robot activity series\n"
	help += "  3  Robots      - Positions and battery\n"
	help += "  4  Products    - Stock per placement\n"
	help += "  5  Scans       - Recent scan batches\n\n"

	help += styles.HelpSection.Render("Actions") + "\n"
	help += "  r              Reconnect channel\n"
	help += "  x              Close channel\n"
	help += "  ctrl+r         Refresh warehouse list\n"
	help += "  /              Filter scans\n"
	help += "  f              Toggle scan follow\n"
	help += "  ?              Show this help\n"
	help += "  q              Quit\n\n"

	help += styles.Muted.Render("Press esc or ? to close")

	overlay := styles.HelpOverlay.Render(help)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, overlay)
}

func (a *App) updateViewSizes() {
	w := a.width - 28 - 6
	h := a.height - 8
	a.overviewView.SetSize(w, h)
	a.activityView.SetSize(w, h)
	a.robotsView.SetSize(w, h)
	a.productsView.SetSize(w, h)
	a.scansView.SetSize(w, h)
}

func (a *App) fetchWarehouses() tea.Cmd {
	src := a.deps.Warehouses
	return func() tea.Msg {
		if src == nil {
			return gateway.WarehousesMsg{}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		list, err := src.ListWarehouses(ctx)
		return gateway.WarehousesMsg{Warehouses: list, Err: err}
	}
}

func (a *App) waitForStatus() tea.Cmd {
	ch := a.deps.Channel
	return func() tea.Msg {
		if _, ok := <-ch.Changes(); !ok {
			return nil
		}
		return gateway.StatusMsg{Status: ch.Status()}
	}
}

func (a *App) waitForStore() tea.Cmd {
	updates := a.deps.Telemetry.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return gateway.StoreUpdatedMsg{}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	interval := a.config.RefreshInterval()
	if interval <= 0 {
		return nil
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return RefreshTickMsg{}
	})
}

func joinWithSeparator(items []string, sep string) []string {
	result := make([]string, 0, len(items)*2)
	for i, item := range items {
		if i > 0 {
			result = append(result, sep)
		}
		result = append(result, item)
	}
	return result
}
