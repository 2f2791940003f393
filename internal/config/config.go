package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	Driver string
	DSN    string

	// Home is the location used for the zone.home zone and as the
	// fallback of every setup default.
	HomeLatitude  float64
	HomeLongitude float64
	HomeElevation float64

	SILAMTimeout time.Duration
	UserAgent    string

	WorkerInterval time.Duration
	WorkerCount    int

	// AdminSecret signs admin tokens. A random secret is generated at
	// startup when empty, which logs every admin out on restart.
	AdminSecret   string
	AdminUsername string
	AdminPassword string

	// MQTT publishing is disabled when MQTTBroker is empty.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	driver := env("DB_DRIVER", "sqlite")
	dsn := env("DB_DSN", "")
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = "silam_pollen.db"
		}
	case "postgres":
		if dsn == "" {
			return Config{}, fmt.Errorf("DB_DSN is required for DB_DRIVER %q", driver)
		}
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: sqlite, postgres)", driver)
	}

	homeLat, err := parseFloat("HOME_LATITUDE", "0")
	if err != nil {
		return Config{}, err
	}
	if homeLat < -90 || homeLat > 90 {
		return Config{}, fmt.Errorf("invalid HOME_LATITUDE %v (must be -90..90)", homeLat)
	}

	homeLon, err := parseFloat("HOME_LONGITUDE", "0")
	if err != nil {
		return Config{}, err
	}
	if homeLon < -180 || homeLon > 180 {
		return Config{}, fmt.Errorf("invalid HOME_LONGITUDE %v (must be -180..180)", homeLon)
	}

	homeElevation, err := parseFloat("HOME_ELEVATION", "0")
	if err != nil {
		return Config{}, err
	}

	silamTimeout, err := parseDuration("SILAM_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}

	workerInterval, err := parseDuration("WORKER_INTERVAL", "1m")
	if err != nil {
		return Config{}, err
	}

	workerCount, err := parseInt("WORKER_COUNT", "2")
	if err != nil {
		return Config{}, err
	}
	if workerCount < 1 {
		return Config{}, fmt.Errorf("invalid WORKER_COUNT %d (must be at least 1)", workerCount)
	}

	adminUsername := env("ADMIN_USERNAME", "")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminUsername != "" && adminPassword == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_USERNAME is set")
	}

	mqttPort, err := parseInt("MQTT_PORT", "1883")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		Driver:          driver,
		DSN:             dsn,
		HomeLatitude:    homeLat,
		HomeLongitude:   homeLon,
		HomeElevation:   homeElevation,
		SILAMTimeout:    silamTimeout,
		UserAgent:       env("SILAM_USER_AGENT", "silam-pollen"),
		WorkerInterval:  workerInterval,
		WorkerCount:     workerCount,
		AdminSecret:     os.Getenv("ADMIN_SECRET"),
		AdminUsername:   adminUsername,
		AdminPassword:   adminPassword,
		MQTTBroker:      env("MQTT_BROKER", ""),
		MQTTPort:        mqttPort,
		MQTTClientID:    env("MQTT_CLIENT_ID", "silam-pollen"),
		MQTTTopicPrefix: env("MQTT_TOPIC_PREFIX", "silam_pollen"),
	}, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseFloat(key, def string) (float64, error) {
	s := env(key, def)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func parseInt(key, def string) (int, error) {
	s := env(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := env(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, s)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
