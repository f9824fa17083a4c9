package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/mqttlink/internal/api"
	"github.com/nerrad567/mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/mqttlink/internal/infrastructure/database"
	"github.com/nerrad567/mqttlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqttlink/internal/infrastructure/logging"
	"github.com/nerrad567/mqttlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttlink/internal/journal"
	"github.com/nerrad567/mqttlink/internal/link"
	"github.com/nerrad567/mqttlink/migrations"
)

// hoursPerDay converts journal.retention_days to a duration.
const hoursPerDay = 24

// app holds the link and its optional sinks for one command invocation.
type app struct {
	cfg *config.Config
	log *logging.Logger

	link *link.Link

	db      *database.DB
	repo    journal.Repository
	journal *journal.Sink
	influx  *influxdb.Client
	hub     *api.Hub
	api     *api.Server
}

// newApp opens the enabled sinks and builds an unconnected link with the
// configured will and TLS material.
func newApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	var sinks []link.EventSink

	if cfg.Journal.Enabled {
		if err := a.openJournal(ctx); err != nil {
			return err
		}
		sinks = append(sinks, a.journal)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		a.influx = client
		a.influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, a.influx)
	}

	if cfg.API.Enabled {
		// The hub exists before the API starts so no early events are lost.
		a.hub = api.NewHub(cfg.API.WebSocket, log)
		sinks = append(sinks, a.hub)
	}

	factory := mqtt.NewFactory(mqtt.EngineConfig{
		Logger: log.With("component", "mqtt"),
	})
	a.link = link.New(factory, cfg.LinkOptions())
	a.link.SetLogger(log.With("component", "link"))
	if len(sinks) > 0 {
		a.link.SetEventSink(link.NewMultiSink(sinks...))
	}

	will := cfg.MQTT.Will
	if will.Topic != "" {
		if err := a.link.SetWill(will.Topic, []byte(will.Payload), byte(will.QoS), will.Retain); err != nil { //nolint:gosec // qos validated by config
			return fmt.Errorf("setting will: %w", err)
		}
	}

	if cfg.MQTT.TLSEnabled() {
		if err := a.link.SetTLS(cfg.MQTT.TLSSettings()); err != nil {
			return fmt.Errorf("setting TLS: %w", err)
		}
	}

	return nil
}

func (a *app) openJournal(ctx context.Context) error {
	db, err := openJournalDB(ctx, a.cfg.Journal)
	if err != nil {
		return err
	}
	a.db = db
	a.repo = journal.NewSQLiteRepository(db.DB)

	a.journal = journal.NewSink(a.repo, journal.SinkOptions{
		BufferSize: a.cfg.Journal.BufferSize,
		Retention:  time.Duration(a.cfg.Journal.Retention) * hoursPerDay * time.Hour,
		Logger:     a.log.With("component", "journal"),
	})
	a.log.Info("journal opened", "path", a.cfg.Journal.Path)
	return nil
}

// openJournalDB opens and migrates the journal database.
func openJournalDB(ctx context.Context, cfg config.JournalConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// connect starts the link against the configured broker.
func (a *app) connect() error {
	b := a.cfg.MQTT.Broker
	if err := a.link.Connect(b.Host, b.Port, a.cfg.MQTT.Auth.Username, a.cfg.MQTT.Auth.Password); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.log.Info("MQTT link started",
		"broker", fmt.Sprintf("%s:%d", b.Host, b.Port),
		"tls", a.cfg.MQTT.TLSEnabled(),
	)
	return nil
}

// startAPI serves the status API when api.enabled is set.
func (a *app) startAPI(ctx context.Context, version string) error {
	if !a.cfg.API.Enabled {
		return nil
	}

	deps := api.Deps{
		Config:  a.cfg.API,
		Logger:  a.log,
		Link:    a.link,
		Hub:     a.hub,
		Version: version,
	}
	if a.db != nil {
		deps.Journal = a.repo
		deps.Store = a.db
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	a.api = srv
	return nil
}

// waitConnected polls until the link reports Connected or ctx ends.
func (a *app) waitConnected(ctx context.Context) error {
	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()
	for !a.link.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for broker: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// connectPollInterval is how often waitConnected checks the link state.
const connectPollInterval = 50 * time.Millisecond

// close stops the API, then shuts the link down so its shutdown event
// reaches the sinks, then closes the sinks.
func (a *app) close() {
	var errs []error
	if a.api != nil {
		if err := a.api.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}

	if a.link != nil {
		a.link.Shutdown()
	}

	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		if dropped := a.journal.Dropped(); dropped > 0 {
			a.log.Warn("journal dropped events", "count", dropped)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error("error closing sinks", "error", err)
	}
}
