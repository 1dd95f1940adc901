package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/airvpn-bridge/internal/api"
	"github.com/rickgao/airvpn-bridge/internal/config"
	"github.com/rickgao/airvpn-bridge/internal/coordinator"
	"github.com/rickgao/airvpn-bridge/internal/database"
	"github.com/rickgao/airvpn-bridge/internal/fetcher"
	"github.com/rickgao/airvpn-bridge/internal/homeassistant"
	"github.com/rickgao/airvpn-bridge/internal/metrics"
	"github.com/rickgao/airvpn-bridge/internal/secret"
	"github.com/rickgao/airvpn-bridge/internal/sensor"
	"github.com/rickgao/airvpn-bridge/internal/server"
	"github.com/rickgao/airvpn-bridge/internal/store"
	"github.com/rickgao/airvpn-bridge/internal/stream"
	"github.com/rickgao/airvpn-bridge/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/bridge.yaml", "path to config file")
	storeKey := flag.Bool("store-key", false, "read the API key from stdin, save it in the OS keyring and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Bootstrap logger until the config says otherwise
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *storeKey {
		if err := runStoreKey(*configPath, os.Stdin); err != nil {
			logger.Error("failed to store api key", "error", err)
			os.Exit(1)
		}
		logger.Info("api key saved to keyring")
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting bridge",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("bridge failed", "error", err)
		os.Exit(1)
	}
	logger.Info("bridge stopped")
}

func run(cfg *config.BridgeConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	apiKey, err := cfg.ResolveAPIKey(secret.New(cfg.Instance.ID).Lookup)
	if err != nil {
		return err
	}

	m := metrics.New(true)

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		apiKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
	)

	coord := coordinator.New(
		coordinator.Config{
			Name:               cfg.Instance.ID,
			Interval:           cfg.Coordinator.Interval,
			Timeout:            cfg.Coordinator.Timeout,
			RequireInitialData: cfg.Coordinator.RequireInitialData,
		},
		fetcher.New(apiClient, logger),
		logger,
		coordinator.WithRecorder(m),
	)

	hub := stream.NewHub(logger, stream.WithClientGauge(m.SetStreamClients))
	defer hub.Close()

	sinks := []sensor.Sink{hub}
	serverOpts := []server.Option{
		server.WithMetrics(m.Handler()),
		server.WithStream(hub),
	}

	if cfg.MQTT.Enabled {
		mqttSink, err := homeassistant.Connect(ctx, homeassistant.Config{
			Broker:          cfg.MQTT.Broker,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			ClientID:        cfg.MQTT.ClientID,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			BaseTopic:       cfg.MQTT.BaseTopic,
			QoS:             byte(*cfg.MQTT.QoS),
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			mqttSink.Close(closeCtx)
		}()
		sinks = append(sinks, mqttSink)
	}

	switch cfg.Store.Driver {
	case "postgres":
		logger.Info("connecting to database",
			"host", cfg.Store.Postgres.Host,
			"port", cfg.Store.Postgres.Port,
			"database", cfg.Store.Postgres.Name,
		)
		pool, err := database.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		pg, err := store.NewPostgres(ctx, pool, logger)
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		sinks = append(sinks, pg)
		serverOpts = append(serverOpts, server.WithCheck(pg.Name(), pg.Ping))
		logger.Info("database connected")

	case "sqlite":
		lite, err := store.OpenSQLite(cfg.Store.SQLite.Path, logger)
		if err != nil {
			return err
		}
		defer lite.Close()
		sinks = append(sinks, lite)
		serverOpts = append(serverOpts, server.WithCheck(lite.Name(), lite.Ping))
		logger.Info("sqlite store opened", "path", cfg.Store.SQLite.Path)
	}

	manager := sensor.NewManager(coord, sinks, logger, sensor.WithRecorder(m))

	srv := server.New(
		server.Config{
			Addr:        fmt.Sprintf(":%d", cfg.HTTP.Port),
			MetricsPath: cfg.HTTP.MetricsPath,
		},
		coord,
		manager,
		logger,
		serverOpts...,
	)

	// Start the HTTP server first so health is visible during the initial refresh
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Stop(shutdownCtx)
	}()

	// Subscribe before the first refresh so its snapshot reaches every sink
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop(context.Background())

	started, err := startCoordinator(ctx, coord, logger)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}

	logger.Info("bridge running",
		"instance_id", cfg.Instance.ID,
		"interval", cfg.Coordinator.Interval,
		"sinks", len(sinks),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := coord.Stop(shutdownCtx); err != nil {
		logger.Warn("coordinator stop incomplete", "error", err)
	}
	return nil
}

// startCoordinator runs the first refresh. A shutdown signal during that
// refresh is a clean stop: started is false and err is nil.
func startCoordinator(ctx context.Context, coord *coordinator.Coordinator, logger *slog.Logger) (started bool, err error) {
	err = coord.Start(ctx)
	if err == nil {
		return true, nil
	}
	if ctx.Err() == nil || !errors.Is(err, context.Canceled) {
		return false, fmt.Errorf("start coordinator: %w", err)
	}

	logger.Info("shutdown requested during initial refresh")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := coord.Stop(stopCtx); err != nil {
		logger.Warn("coordinator stop incomplete", "error", err)
	}
	return false, nil
}

// runStoreKey reads one line from r and saves it as the instance's API key.
func runStoreKey(configPath string, r io.Reader) error {
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, "AirVPN API key: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read api key: %w", err)
	}
	return secret.New(cfg.Instance.ID).Store(line)
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
