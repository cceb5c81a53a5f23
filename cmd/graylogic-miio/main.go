// Gray Logic Miio - device session service for Xiaomi miio devices.
//
// This is the main entry point for the graylogic-miio daemon. It hosts the
// python-miio library in a supervised Python process and exposes device
// sessions over:
//   - a REST API (create, list, invoke, export)
//   - MQTT commands and acknowledgements (optional)
//   - InfluxDB invocation metrics (optional)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-miio/internal/api"
	"github.com/nerrad567/gray-logic-miio/internal/audit"
	"github.com/nerrad567/gray-logic-miio/internal/bridge"
	"github.com/nerrad567/gray-logic-miio/internal/bridges/miio"
	"github.com/nerrad567/gray-logic-miio/internal/device"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-miio/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-miio/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// bridgeStatsInterval is how often host process stats are written to InfluxDB.
const bridgeStatsInterval = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Miio",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // nothing left to report to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	interp, err := startInterpreter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping python host")
		if closeErr := interp.Close(); closeErr != nil {
			log.Error("error stopping python host", "error", closeErr)
		}
	}()

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), interp)
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	records, err := registry.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	log.Info("device registry initialised", "devices", len(records))

	auditRepo := audit.NewSQLiteRepository(db.DB)

	checks := map[string]api.HealthCheckFunc{
		"database":    db.HealthCheck,
		"interpreter": interp.Ping,
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		registry.SetMetrics(influxClient)
		go reportBridgeStats(ctx, interp, influxClient)
		checks["influxdb"] = influxClient.HealthCheck
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT command bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(ctx, cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		miioBridge, bridgeErr := miio.NewBridge(miio.Options{
			MQTT:             mqttClient,
			Devices:          registry,
			Version:          version,
			CommandTimeout:   cfg.Bridge.CallTimeout,
			InterpreterStats: interpreterStatus(interp),
			Audit:            auditRepo,
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating miio bridge: %w", bridgeErr)
		}
		miioBridge.SetLogger(log)
		if startErr := miioBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting miio bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping miio bridge")
			miioBridge.Stop()
		}()
		checks["mqtt"] = mqttClient.HealthCheck
	} else {
		log.Info("MQTT bridge disabled")
	}

	// REST API
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			Logger:      log,
			Registry:    registry,
			Audit:       auditRepo,
			CallTimeout: cfg.Bridge.CallTimeout,
			Checks:      checks,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("REST API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API, miio bridge, MQTT, InfluxDB, python host, database.

	log.Info("Gray Logic Miio stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startInterpreter creates the python host and resolves the capability
// module once so that configuration problems surface at startup. A failed
// resolution is logged, not fatal: the next call retries it.
func startInterpreter(ctx context.Context, cfg *config.Config, log *logging.Logger) (*bridge.Interpreter, error) {
	source, err := bridge.SourceFromConfig(cfg.Bridge)
	if err != nil {
		return nil, fmt.Errorf("configuring module source: %w", err)
	}

	interp := bridge.NewHost(bridge.HostConfigFromConfig(cfg), source, log)
	log.Info("python host configured",
		"python", cfg.Bridge.Python,
		"source", source.Describe(),
	)

	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout(cfg))
	defer cancel()
	if resolveErr := interp.Resolve(resolveCtx); resolveErr != nil {
		log.Warn("capability module not loaded", "error", resolveErr)
	} else {
		log.Info("capability module loaded", "source", interp.Source().Describe())
	}
	return interp, nil
}

func resolveTimeout(cfg *config.Config) time.Duration {
	if cfg.Bridge.CallTimeout > 0 {
		return cfg.Bridge.CallTimeout
	}
	return 30 * time.Second
}

// interpreterStatus adapts host process stats for bridge health messages.
func interpreterStatus(interp *bridge.Interpreter) func() (miio.InterpreterStatus, bool) {
	return func() (miio.InterpreterStatus, bool) {
		stats, ok := interp.HostStats()
		if !ok {
			return miio.InterpreterStatus{}, false
		}
		return miio.InterpreterStatus{
			Status:   string(stats.Status),
			PID:      stats.PID,
			Restarts: stats.RestartCount,
		}, true
	}
}

// reportBridgeStats writes host process stats until ctx is cancelled.
func reportBridgeStats(ctx context.Context, interp *bridge.Interpreter, influxClient *influxdb.Client) {
	ticker := time.NewTicker(bridgeStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats, ok := interp.HostStats(); ok {
				influxClient.WriteBridgeStats(stats)
			}
		}
	}
}
