package config

import "time"

// SimulationConfig controls the engine and its clock.
type SimulationConfig struct {
	TickInterval time.Duration `yaml:"tickInterval" validate:"gt=0"`
	Seed         uint64        `yaml:"seed"`
	Accelerated  bool          `yaml:"accelerated"`
	// Duration bounds the run in simulated time; zero runs until stopped.
	Duration     time.Duration `yaml:"duration" validate:"gte=0"`
	Motion       string        `yaml:"motion" validate:"oneof=random static"`
	ScenarioPath string        `yaml:"scenarioPath"`
}

// ServerConfig holds listen addresses. An empty address disables that listener.
type ServerConfig struct {
	HTTPAddr    string `yaml:"httpAddr" validate:"omitempty,hostname_port"`
	GRPCAddr    string `yaml:"grpcAddr" validate:"omitempty,hostname_port"`
	MetricsAddr string `yaml:"metricsAddr" validate:"omitempty,hostname_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter" validate:"omitempty,oneof=stdout otlp otlpgrpc"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

type AlertsConfig struct {
	SpeedLimitKmh float64 `yaml:"speedLimitKmh" validate:"gt=0"`
	MaxAlerts     int     `yaml:"maxAlerts" validate:"gte=0"`

	// MaxTripsPerVehicle caps completed trips kept per vehicle; zero keeps all.
	MaxTripsPerVehicle int `yaml:"maxTripsPerVehicle" validate:"gte=0"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}
