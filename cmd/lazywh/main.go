package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lazywh/lazywh/internal/config"
	"github.com/lazywh/lazywh/internal/gateway"
	"github.com/lazywh/lazywh/internal/logger"
	"github.com/lazywh/lazywh/internal/metrics"
	"github.com/lazywh/lazywh/internal/state"
	"github.com/lazywh/lazywh/internal/store"
	"github.com/lazywh/lazywh/internal/ui"
)

const mockBase = "mock://lazywh/api/ws/warehouses"

func main() {
	mockMode := flag.Bool("mock", false, "Run in mock mode (simulated telemetry, no backend)")
	configPath := flag.String("config", "", "Path to config.yml (default: $XDG_CONFIG_HOME/lazywh/config.yml)")
	metricsAddr := flag.String("metrics-addr", "", "Serve /metrics and /healthz on this address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	var (
		cfg      *config.Config
		firstRun bool
		err      error
	)
	if *configPath != "" {
		cfg, firstRun, err = config.LoadFrom(*configPath)
	} else {
		cfg, firstRun, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithComponent("main")
	log.Info().Bool("mock", *mockMode).Bool("first_run", firstRun).Msg("Starting lazywh")

	code := run(cfg, *mockMode, log)
	_ = logCloser.Close()
	os.Exit(code)
}

func run(cfg *config.Config, mockMode bool, log logger.Logger) int {
	telemetryStore := store.New(
		store.WithSeriesBound(cfg.Realtime.SeriesBound),
		store.WithScanHistory(cfg.Realtime.ScanHistory),
	)

	channelCfg := gateway.Config{
		BaseURL:           cfg.Server.WSBase,
		Token:             cfg.Token(),
		ReconnectInterval: cfg.ReconnectInterval(),
		MaxAttempts:       cfg.Realtime.MaxAttempts,
		HandshakeTimeout:  cfg.HandshakeTimeout(),
	}

	var (
		opts       []gateway.Option
		warehouses ui.WarehouseSource
	)
	switch {
	case mockMode:
		dialer := gateway.NewMockDialer(2 * time.Second)
		dialer.DropAfter = 150
		opts = append(opts, gateway.WithDialer(dialer))
		channelCfg.BaseURL = mockBase
		warehouses = gateway.StaticWarehouses(gateway.WarehouseList())
	case cfg.Server.APIBase == "":
		warehouses = gateway.StaticWarehouses(cfg.Warehouses)
	default:
		warehouses = gateway.NewRESTAdapter(cfg.Server.APIBase, cfg.Token())
	}

	manager := gateway.NewManager(channelCfg, telemetryStore, opts...)
	defer manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, metrics.NewRouter(manager.Status)); err != nil {
				log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server failed")
			}
		}()
	}

	uiState, err := state.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load UI state, using defaults")
	}

	app := ui.NewApp(cfg, uiState, ui.Deps{
		Channel:    manager,
		Telemetry:  telemetryStore,
		Warehouses: warehouses,
		MockMode:   mockMode,
	})

	p := tea.NewProgram(app, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running lazywh: %v\n", err)
		return 1
	}

	if finalApp, ok := finalModel.(*ui.App); ok {
		if err := state.Save(finalApp.GetState()); err != nil {
			log.Warn().Err(err).Msg("Failed to save UI state")
		}
	}
	return 0
}
