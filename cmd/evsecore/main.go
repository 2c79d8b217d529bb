// Command evsecore is a reference host for the core library: it loads a
// bootstrap.Config, wires a real filesystem and WebSocket transport, and
// drives a System with a plain ticker loop until signalled to stop. It
// has no UI of its own and wires no host inputs or outputs, so every
// connector runs with its unset-input defaults (no plug detected, no
// meter reading).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridwire/ocpp16core/internal/bootstrap"
	"github.com/gridwire/ocpp16core/internal/core"
	"github.com/gridwire/ocpp16core/internal/fsadapter"
	"github.com/gridwire/ocpp16core/internal/telemetry"
	"github.com/gridwire/ocpp16core/internal/transport/wsclient"
)

const (
	appName    = "evsecore"
	appVersion = "0.1.0"
)

func main() {
	configPath := flag.String("conf", "", "path to config file")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		log.Printf("error loading config: %v", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	logger.Info("starting evsecore",
		slog.String("version", appVersion),
		slog.String("station_id", cfg.CSMS.StationID))

	fs, err := fsadapter.NewOS(cfg.Storage.Root)
	if err != nil {
		logger.Error("failed to init storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	wsURL := fmt.Sprintf("%s/%s", cfg.CSMS.URL, cfg.CSMS.StationID)
	tr := wsclient.New(wsclient.Config{
		URL:               wsURL,
		StationID:         cfg.CSMS.StationID,
		ConnectTimeout:    cfg.CSMS.ConnectTimeout,
		ReconnectBase:     cfg.CSMS.ReconnectBackoff,
		MaxReconnect:      cfg.CSMS.MaxReconnectAttempts,
		BasicAuthUsername: cfg.CSMS.BasicAuthUser,
		BasicAuthPassword: cfg.CSMS.BasicAuthPassword,
		TLSSkipVerify:     cfg.CSMS.TLSInsecureSkipVerify,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mirror *telemetry.Mirror
	if cfg.Telemetry.Enabled {
		mirror, err = telemetry.Connect(ctx, telemetry.Config{
			URI:               cfg.Telemetry.URI,
			Database:          cfg.Telemetry.Database,
			ConnectionTimeout: cfg.Telemetry.ConnectionTimeout,
		}, cfg.CSMS.StationID, logger)
		if err != nil {
			logger.Error("failed to connect telemetry mirror", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("telemetry mirror connected")
	}

	connectorIDs := make([]int, cfg.Station.ConnectorCount)
	for i := range connectorIDs {
		connectorIDs[i] = i + 1
	}

	sys, err := core.Init(core.Options{
		Logger:    logger,
		FS:        fs,
		Transport: tr,
		StationID: cfg.CSMS.StationID,
		Credentials: core.Credentials{
			ChargePointVendor: cfg.Station.Vendor,
			ChargePointModel:  cfg.Station.Model,
		},
		VoltageV:     cfg.Station.VoltageV,
		ConnectorIDs: connectorIDs,
		Telemetry:    mirror,
	})
	if err != nil {
		logger.Error("failed to init core", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		close(stop)
	}()

	logger.Info("entering main loop")
	sys.Loop(500*time.Millisecond, stop)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := sys.Deinit(shutdownCtx); err != nil {
		logger.Error("error during shutdown", slog.String("error", err.Error()))
	}
	logger.Info("evsecore stopped")
}

func initLogger(cfg *bootstrap.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Logging.Level == "debug" {
		opts.Level = slog.LevelDebug
	}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
