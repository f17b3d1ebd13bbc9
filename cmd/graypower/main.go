// Gray Logic Power - Site Power Transition Core
//
// This is the main entry point for the Gray Logic Power daemon. It owns
// the device power topology, drives suspend/resume transitions over it,
// and exposes the control surface:
//   - REST API for triggering transitions and inspecting the topology
//   - WebSocket stream of per-phase and per-device progress
//   - MQTT diagnostics on the site bus
//   - SQLite transition history and InfluxDB phase timings
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-power/migrations"

	"github.com/nerrad567/gray-logic-power/internal/api"
	"github.com/nerrad567/gray-logic-power/internal/history"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-power/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-power/internal/pm"
	"github.com/nerrad567/gray-logic-power/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// historyPruneInterval is how often expired transition rows are removed.
const historyPruneInterval = 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Power",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Transition history repository
	historyRepo := history.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub, shared between the API server and the telemetry
	// observer so phase progress reaches connected clients.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Telemetry fan-out. Typed nils must not reach the interface fields,
	// so only assign the sinks that are actually configured.
	var pub telemetry.Publisher
	if mqttClient != nil {
		pub = mqttClient
	}
	var metrics telemetry.MetricsWriter
	if influxClient != nil {
		metrics = influxClient
	}
	observer := telemetry.New(log, pub, metrics, hub, historyRepo)

	// Power engine over the subsystem topology
	engine := pm.New(pm.Config{
		AsyncEnabled:    cfg.Power.AsyncEnabled,
		MaxAsync:        int64(cfg.Power.MaxAsync),
		WatchdogTimeout: time.Duration(cfg.Power.WatchdogTimeout) * time.Second,
		Denylist:        cfg.Power.Denylist,
		Logger:          log,
		Observer:        observer,
	})

	if err := registerSubsystems(engine, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("registering subsystems: %w", err)
	}
	log.Info("power topology registered", "devices", len(engine.Devices()))

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Engine:      engine,
		History:     historyRepo,
		Telemetry:   observer,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Retention pruning for transition history
	if cfg.Power.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.Power.HistoryRetentionDays) * 24 * time.Hour
		go pruneHistory(ctx, historyRepo, retention, log)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Gray Logic Power stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYPOWER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYPOWER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerSubsystems builds the daemon's own power topology: the
// infrastructure services it manages, with callbacks that quiesce each
// one on suspend and bring it back on resume. External platform code can
// register further devices through the engine at runtime.
//
// Parameters:
//   - eng: Power engine to register with
//   - db: Database handle (always present)
//   - mqttClient: MQTT client, nil when disabled
//   - influxClient: InfluxDB client, nil when disabled
//
// Returns:
//   - error: First registration failure
func registerSubsystems(eng *pm.Engine, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	serviceBus := &pm.Bus{Name: "service"}

	// SQLite: checkpoint the WAL late in suspend so the on-disk state is
	// consistent before the platform powers down storage.
	sqlite := &pm.Device{
		Name: "storage.sqlite",
		Bus:  serviceBus,
		Driver: &pm.Driver{
			Name: "sqlite",
			Ops: &pm.Ops{
				SuspendLate: func(*pm.Device, pm.Event) error {
					return db.Checkpoint(context.Background())
				},
				ResumeEarly: func(*pm.Device, pm.Event) error {
					return db.DB.Ping()
				},
			},
		},
	}
	if err := eng.Register(sqlite); err != nil {
		return err
	}

	// InfluxDB: flush buffered points before the link goes away. Flush
	// blocks until the write API drains, so let it overlap with other
	// devices.
	if influxClient != nil {
		influx := &pm.Device{
			Name:         "telemetry.influxdb",
			Bus:          serviceBus,
			AsyncCapable: true,
			Driver: &pm.Driver{
				Name: "influxdb",
				Ops: &pm.Ops{
					Suspend: func(*pm.Device, pm.Event) error {
						influxClient.Flush()
						return nil
					},
				},
			},
		}
		if err := eng.Register(influx); err != nil {
			return err
		}
	}

	// MQTT: announce the state change on the site bus. Wakeup-capable;
	// bus traffic is allowed to wake the site, so this device never gets
	// direct-complete.
	if mqttClient != nil {
		announce := func(state string) error {
			payload, err := json.Marshal(map[string]string{
				"state":     state,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				return err
			}
			return mqttClient.Publish(mqtt.Topics{}.SystemStatus(), payload, 1, true)
		}
		bus := &pm.Device{
			Name:   "bus.mqtt",
			Bus:    serviceBus,
			Wakeup: true,
			Driver: &pm.Driver{
				Name: "mqtt",
				Ops: &pm.Ops{
					Suspend: func(_ *pm.Device, ev pm.Event) error {
						return announce(ev.String())
					},
					Resume: func(*pm.Device, pm.Event) error {
						return announce("online")
					},
				},
			},
		}
		if err := eng.Register(bus); err != nil {
			return err
		}
	}

	return nil
}

// pruneHistory periodically removes transition rows older than the
// configured retention period.
func pruneHistory(ctx context.Context, repo history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		deleted, err := repo.Prune(ctx, retention)
		if err != nil {
			log.Error("history prune failed", "error", err)
		} else if deleted > 0 {
			log.Info("pruned transition history", "rows", deleted, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
