// Shadowbridge - device-to-shadow bridge
//
// Shadowbridge sits between line-protocol devices (serial-over-IP AV
// receivers, projectors, relay controllers) and an MQTT shadow service.
// It keeps one merged property document per thing, reports changes as
// they happen on the wire, and turns desired-state deltas into device
// commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/calder-iot/shadowbridge/migrations"

	"github.com/calder-iot/shadowbridge/internal/aggregator"
	"github.com/calder-iot/shadowbridge/internal/api"
	"github.com/calder-iot/shadowbridge/internal/diag"
	"github.com/calder-iot/shadowbridge/internal/drivers"
	"github.com/calder-iot/shadowbridge/internal/engine"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/config"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/database"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/logging"
	"github.com/calder-iot/shadowbridge/internal/infrastructure/mqtt"
	"github.com/calder-iot/shadowbridge/internal/property"
	"github.com/calder-iot/shadowbridge/internal/shadow"
	"github.com/calder-iot/shadowbridge/internal/stream"
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

// diagRingCapacity is how many recent diagnostics the status API serves
// from memory.
const diagRingCapacity = 256

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Shadowbridge",
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

	// Open database for the diagnostics journal
	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Diagnostics pipeline: in-memory ring for the API, persistent journal,
	// and warn-level log entries.
	ring := diag.NewRing(diagRingCapacity)
	journal := diag.NewJournal(db.DB, log)
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			log.Error("error closing journal", "error", closeErr)
		}
	}()
	sink := diag.MultiSink{ring, journal, diag.NewLogSink(log)}

	// Shadow client over MQTT
	shadowClient := shadow.New(mqttClient, shadow.Config{
		TopicPrefix: cfg.Thing.TopicPrefix,
		Thing:       cfg.Thing.Name,
		QoS:         byte(cfg.MQTT.QoS),
	}, log, sink)

	// WebSocket hub doubles as the aggregator's local broadcaster
	hub := api.NewHub(cfg.WebSocket, log)

	agg := aggregator.New(shadowClient, nil, log, sink, hub)

	// Build adapters, streams and engines from configuration
	for _, ac := range cfg.Adapters {
		desc, lookupErr := drivers.Lookup(ac.Driver)
		if lookupErr != nil {
			return fmt.Errorf("adapter %s: %w", ac.Name, lookupErr)
		}

		a, buildErr := desc.Build(ac.Name, log)
		if buildErr != nil {
			return fmt.Errorf("adapter %s: building driver %s: %w", ac.Name, ac.Driver, buildErr)
		}

		for prop, raw := range ac.Initial {
			v, convErr := property.FromInterface(raw)
			if convErr != nil {
				return fmt.Errorf("adapter %s: initial value for %s: %w", ac.Name, prop, convErr)
			}
			a.State().SetInitial(prop, v)
		}

		devStream, dialErr := stream.Dial(ctx, stream.ClientConfig{Connection: ac.Connection})
		if dialErr != nil {
			return fmt.Errorf("adapter %s: connecting to device: %w", ac.Name, dialErr)
		}
		defer func(name string, s *stream.Client) {
			log.Info("closing device stream", "adapter", name)
			if closeErr := s.Close(); closeErr != nil {
				log.Error("error closing device stream", "adapter", name, "error", closeErr)
			}
		}(ac.Name, devStream)

		eng := engine.New(a, devStream, agg.Updates(), engineConfig(ac, desc.Defaults), log, sink)

		if regErr := agg.Register(a, eng); regErr != nil {
			return fmt.Errorf("adapter %s: %w", ac.Name, regErr)
		}
		log.Info("adapter registered",
			"adapter", ac.Name,
			"driver", ac.Driver,
			"connection", ac.Connection,
		)
	}

	// Start reconciliation: connects the shadow client, starts engines
	if startErr := agg.Start(ctx); startErr != nil {
		return fmt.Errorf("starting aggregator: %w", startErr)
	}
	defer func() {
		log.Info("stopping aggregator")
		agg.Stop()
	}()

	// Status API server
	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Aggregator:  agg,
		Ring:        ring,
		Journal:     journal,
		DB:          db,
		MQTT:        mqttClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Aggregator (stops engines, then the shadow client)
	// 3. Device streams
	// 4. Diagnostics journal
	// 5. MQTT
	// 6. Database

	log.Info("Shadowbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SHADOWBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SHADOWBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// engineConfig merges one adapter's configuration with its driver defaults.
// Explicit configuration wins; empty fields fall back to what the driver
// declares for its device family.
func engineConfig(ac config.AdapterConfig, defaults drivers.Defaults) engine.Config {
	cfg := engine.Config{
		Synchronous:     ac.Synchronous || defaults.Synchronous,
		Terminator:      ac.Terminator,
		WriteTerminator: ac.WriteTerminator,
		ReadTimeout:     ac.ReadTimeout,
		PollInterval:    ac.PollInterval,
	}
	if cfg.Terminator == "" {
		cfg.Terminator = defaults.Terminator
	}
	if cfg.WriteTerminator == "" {
		cfg.WriteTerminator = defaults.WriteTerminator
	}
	return cfg
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
