package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/cicconee/silam-pollen/internal/admin"
	"github.com/cicconee/silam-pollen/internal/config"
	"github.com/cicconee/silam-pollen/internal/db"
	"github.com/cicconee/silam-pollen/internal/entry"
	"github.com/cicconee/silam-pollen/internal/flow"
	"github.com/cicconee/silam-pollen/internal/forecast"
	"github.com/cicconee/silam-pollen/internal/logging"
	"github.com/cicconee/silam-pollen/internal/publish"
	"github.com/cicconee/silam-pollen/internal/server"
	"github.com/cicconee/silam-pollen/internal/silam"
	"github.com/cicconee/silam-pollen/internal/zone"
)

const appName = "silam-pollen"

// version is set at build time.
var version = "dev"

var addr string

func main() {
	flag.StringVar(&addr, "addr", "", "the address the server should listen on (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"dbDriver", cfg.Driver,
		"workerInterval", cfg.WorkerInterval,
		"workerCount", cfg.WorkerCount,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort)

	conn, err := db.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("db close", "error", err)
		}
	}()

	home := zone.Home{
		Latitude:  cfg.HomeLatitude,
		Longitude: cfg.HomeLongitude,
		Elevation: cfg.HomeElevation,
	}

	client := &silam.Client{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.SILAMTimeout,
		Logger:    logger,
	}

	var (
		writer  forecast.StateWriter = publish.Nop{}
		mqttPub *publish.MQTTPublisher
	)
	if cfg.MQTTBroker != "" {
		mqttPub = publish.NewMQTTPublisher(publish.Options{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		defer mqttPub.Close()
		writer = mqttPub
	}

	secret := []byte(cfg.AdminSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating admin secret: %w", err)
		}
		logger.Warn("ADMIN_SECRET is not set, admin tokens will not survive a restart")
	}

	admins := admin.New(secret, conn)
	if cfg.AdminUsername != "" {
		if err := admins.Ensure(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			return fmt.Errorf("creating admin %q: %w", cfg.AdminUsername, err)
		}
		logger.Info("admin ready", "username", cfg.AdminUsername)
	}

	zones := zone.New(conn, home)
	entries := entry.NewStore(conn)
	devices := forecast.NewService(entries, client, writer, logger)

	srv := &server.Server{
		Router:      chi.NewRouter(),
		Addr:        cfg.HTTPAddr,
		Interval:    cfg.WorkerInterval,
		WorkerCount: cfg.WorkerCount,
		Logger:      logger,
		Admins:      admins,
		Zones:       zones,
		Entries:     entries,
		Flows: &flow.Manager{
			Zones:    zones,
			Entries:  entries,
			Prober:   client,
			Home:     home,
			Reloader: devices,
			Logger:   logger,
		},
		Devices: devices,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if mqttPub != nil {
		// The broker may be down at startup. States written before the
		// connection is up are dropped and logged.
		g.Go(func() error {
			if err := mqttPub.Connect(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}
