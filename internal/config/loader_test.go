package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "FLEET_TRACING_ENABLED", "FLEET_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
	if cfg.Simulation.TickInterval != 3*time.Second {
		t.Fatalf("TickInterval = %v, want 3s", cfg.Simulation.TickInterval)
	}
}

func TestLoadExplicitPath(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, t.TempDir(), `
simulation:
  tickInterval: 500ms
  seed: 42
  accelerated: true
  duration: 1m
  motion: static
server:
  httpAddr: "127.0.0.1:8081"
alerts:
  speedLimitKmh: 90
`)

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Simulation.TickInterval != 500*time.Millisecond || cfg.Simulation.Seed != 42 {
		t.Fatalf("simulation = %+v", cfg.Simulation)
	}
	if !cfg.Simulation.Accelerated || cfg.Simulation.Duration != time.Minute || cfg.Simulation.Motion != "static" {
		t.Fatalf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8081" {
		t.Fatalf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	// Unset keys keep their defaults.
	if cfg.Server.GRPCAddr != ":9090" || cfg.Alerts.MaxAlerts != 500 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Server, cfg.Alerts)
	}
	if cfg.Alerts.SpeedLimitKmh != 90 {
		t.Fatalf("SpeedLimitKmh = %v, want 90", cfg.Alerts.SpeedLimitKmh)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("Load(missing) expected error")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Simulation.Motion != "random" || cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadSearchesConfigsDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "configs"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeConfig(t, filepath.Join(dir, "configs"), "alerts:\n  speedLimitKmh: 80\n")
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Alerts.SpeedLimitKmh != 80 {
		t.Fatalf("SpeedLimitKmh = %v, want 80", cfg.Alerts.SpeedLimitKmh)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"motion":      "simulation:\n  motion: teleport\n",
		"tick":        "simulation:\n  tickInterval: -1s\n",
		"sampleRatio": "tracing:\n  sampleRatio: 2\n",
		"format":      "logging:\n  format: xml\n",
		"speed":       "alerts:\n  speedLimitKmh: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeConfig(t, t.TempDir(), body)
			if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("Load() error = %v, want invalid config", err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	p := writeConfig(t, t.TempDir(), "simulation: [\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("Load() expected parse error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":             "DEBUG",
		"LOG_FORMAT":            "json",
		"FLEET_TRACING_ENABLED": "true",
		"FLEET_OTLP_ENDPOINT":   "collector:4317",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnvOverrides(&cfg, lookup); err != nil {
		t.Fatalf("ApplyEnvOverrides() error = %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "collector:4317" || cfg.Tracing.Exporter != "otlp" {
		t.Fatalf("tracing = %+v", cfg.Tracing)
	}

	env["FLEET_TRACING_ENABLED"] = "maybe"
	if err := ApplyEnvOverrides(&cfg, lookup); err == nil {
		t.Fatalf("expected error for bad FLEET_TRACING_ENABLED")
	}
}
