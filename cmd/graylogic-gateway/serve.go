package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-gateway/internal/api"
	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/auth"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/migrations"
)

// shutdownTimeout bounds how long live sockets get to close.
const shutdownTimeout = 10 * time.Second

func newServeCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath())
		},
	}
}

// run is the serve logic, separated from the command for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	users := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, users, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}

	authSvc, err := newAuthService(cfg, db)
	if err != nil {
		return err
	}
	authSvc.SetLogger(log.Component("auth"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw, err := gateway.New(gateway.Deps{
		Options: gateway.OptionsFromConfig(cfg.Gateway),
		Auth:    authSvc,
		Logger:  log,
		Metrics: gateway.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	checks := map[string]api.HealthChecker{"database": db}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// The bridge outlives ctx so offline events raised during
		// gateway shutdown still reach the broker; Stop ends it.
		bridge := gateway.NewMQTTBridge(mqttClient, gw, byte(cfg.MQTT.QoS), 0, log)
		if startErr := bridge.Start(context.WithoutCancel(ctx)); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer bridge.Stop()
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Gateway:  gw,
		Auth:     authSvc,
		Gatherer: reg,
		Checks:   checks,
		Audit:    audit.NewSQLiteRepository(db.DB),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Sockets first: the HTTP server does not track hijacked connections.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down gateway", "error", err)
	}
	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}

	log.Info("Gray Logic Gateway stopped")
	return nil
}

// openDatabase opens the configured SQLite store and applies pending
// migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func newAuthService(cfg *config.Config, db *database.DB) (*auth.Service, error) {
	svc, err := auth.NewService(auth.ServiceConfig{
		JWTSecret: cfg.Security.JWT.Secret,
		TokenTTL:  cfg.Security.JWT.AccessTokenTTL,
		CacheSize: cfg.Security.IdentityCache.Size,
		CacheTTL:  time.Duration(cfg.Security.IdentityCache.TTL) * time.Second,
	}, auth.NewUserRepository(db.DB), device.NewSQLiteRepository(db.DB), auth.NewDeviceAccessRepository(db.DB))
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}
	return svc, nil
}
