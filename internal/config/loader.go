// Package config loads the simulator's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SearchPaths are tried in order when Load is called without a path.
var SearchPaths = []string{"config.yml", "configs/config.yml"}

// Default returns the configuration used when no file is found.
func Default() AppConfig {
	return AppConfig{
		Simulation: SimulationConfig{
			TickInterval: 3 * time.Second,
			Motion:       "random",
		},
		Server: ServerConfig{
			HTTPAddr:    ":8080",
			GRPCAddr:    ":9090",
			MetricsAddr: ":9464",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "fleet-sim",
			SampleRatio: 1,
		},
		Alerts: AlertsConfig{
			SpeedLimitKmh: 120,
			MaxAlerts:     500,
		},
	}
}

// Load reads, defaults, overrides from the environment and validates the
// configuration. An explicit path must exist; with an empty path the
// SearchPaths are tried and the defaults are used when none exists.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	data, err := read(path)
	if err != nil {
		return AppConfig{}, err
	}
	if data != nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return AppConfig{}, err
	}
	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func read(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return data, nil
	}
	for _, p := range SearchPaths {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", p, err)
		}
	}
	return nil, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg AppConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides overlays LOG_LEVEL, LOG_FORMAT, FLEET_TRACING_ENABLED and
// FLEET_OTLP_ENDPOINT onto cfg. Setting an OTLP endpoint also selects the
// otlp exporter.
func ApplyEnvOverrides(cfg *AppConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := lookup("FLEET_TRACING_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FLEET_TRACING_ENABLED: %w", err)
		}
		cfg.Tracing.Enabled = enabled
	}
	if v, ok := lookup("FLEET_OTLP_ENDPOINT"); ok && v != "" {
		cfg.Tracing.Endpoint = v
		cfg.Tracing.Exporter = "otlp"
	}
	return nil
}
