// stbridge - SmartThings bridge
//
// This is the main entry point for the bridge. It connects a
// SmartThings location to a local control host: devices become typed
// entities, status polls become attribute deltas, and commands flow
// back to the cloud through a rate-limited API client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/stbridge/internal/api"
	"github.com/nerrad567/stbridge/internal/entity"
	"github.com/nerrad567/stbridge/internal/infrastructure/config"
	"github.com/nerrad567/stbridge/internal/infrastructure/logging"
	"github.com/nerrad567/stbridge/internal/mqttbridge"
	"github.com/nerrad567/stbridge/internal/session"
	"github.com/nerrad567/stbridge/internal/smartthings"
	"github.com/nerrad567/stbridge/internal/store"
	"github.com/nerrad567/stbridge/internal/telemetry"
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
	log.Info("starting stbridge",
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

	// Open the snapshot store
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "path", st.Path())

	// SmartThings API client with request metrics
	metrics := smartthings.NewMetrics()
	client := smartthings.New(cfg.SmartThings,
		smartthings.WithLogger(log),
		smartthings.WithMetrics(metrics),
	)
	log.Info("SmartThings client ready",
		"base_url", cfg.SmartThings.BaseURL,
		"cache_ttl", cfg.SmartThings.GetCacheTTL(),
	)

	// Session: discovery, polling, commands, events
	sess := session.New(*cfg, client,
		session.WithLogger(log),
		session.WithStore(st),
	)

	// Rebuild entities from the last snapshot so the API serves a view
	// immediately, before the cloud connection lands.
	if preloadErr := sess.Preload(ctx); preloadErr != nil {
		log.Warn("snapshot preload failed", "error", preloadErr)
	} else {
		log.Info("entities preloaded from snapshot", "entities", len(sess.Entities()))
	}

	// HTTP API and WebSocket hub
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Session: sess,
		Metrics: metrics.Handler(),
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Telemetry sink (optional)
	sink, err := telemetry.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		log.Info("telemetry disabled")
		sink = nil
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing telemetry sink")
			if closeErr := sink.Close(); closeErr != nil {
				log.Error("error closing telemetry sink", "error", closeErr)
			}
		}()
		sink.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// MQTT state mirror (optional)
	mirror, err := mqttbridge.Connect(cfg.MQTT, log)
	switch {
	case errors.Is(err, mqttbridge.ErrDisabled):
		log.Info("MQTT mirror disabled")
		mirror = nil
	case err != nil:
		return fmt.Errorf("connecting to MQTT: %w", err)
	default:
		defer func() {
			log.Info("closing MQTT mirror")
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing MQTT mirror", "error", closeErr)
			}
		}()
		log.Info("MQTT mirror connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Fan events out to the WebSocket hub and the optional consumers.
	// The goroutine ends when Disconnect closes the event channel.
	done := make(chan struct{})
	go func() {
		defer close(done)
		fanOutEvents(sess, apiServer.Hub(), mirror, sink)
	}()

	// Go live: discovery, then the polling loop
	if connectErr := sess.Connect(ctx); connectErr != nil {
		return fmt.Errorf("connecting session: %w", connectErr)
	}
	log.Info("session connected",
		"entities", len(sess.Entities()),
		"poll_interval", cfg.Polling.GetInterval(),
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	sess.Disconnect()
	<-done

	log.Info("stbridge stopped")
	return nil
}

// fanOutEvents consumes the session event stream and dispatches each
// event to every interested consumer. Single-reader: the session
// channel has exactly one consumer, and each sink gets events in order.
func fanOutEvents(sess *session.Session, hub *api.Hub, mirror *mqttbridge.Mirror, sink *telemetry.Sink) {
	for ev := range sess.Events() {
		if hub != nil {
			hub.BroadcastEvent(ev)
		}

		if mirror == nil && sink == nil {
			continue
		}

		var e *entity.Entity
		if ev.Type == session.EventEntityChange {
			e, _ = sess.Entity(ev.EntityID)
		}
		if mirror != nil {
			mirror.PublishEvent(ev, e)
		}
		if sink != nil {
			sink.RecordEvent(ev, e)
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses STBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
