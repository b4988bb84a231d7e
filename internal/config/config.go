// Package config provides configuration management for the allocdesk service.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Session   SessionConfig   `yaml:"session"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	HTTPPort        int    `yaml:"http_port"`
	GRPCPort        int    `yaml:"grpc_port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// ShutdownDeadline returns how long graceful shutdown may take.
func (s *ServerConfig) ShutdownDeadline() time.Duration {
	return parseDurationOr(s.ShutdownTimeout, 30*time.Second)
}

// RemoteConfig points at the remote allocation service.
type RemoteConfig struct {
	BaseURL      string `yaml:"base_url"`
	Timeout      string `yaml:"timeout"`
	ProbeTimeout string `yaml:"probe_timeout"`
}

// RequestTimeout returns the per-request timeout for remote calls.
func (r *RemoteConfig) RequestTimeout() time.Duration {
	return parseDurationOr(r.Timeout, 30*time.Second)
}

// ProbeDeadline returns the timeout for the availability probe.
func (r *RemoteConfig) ProbeDeadline() time.Duration {
	return parseDurationOr(r.ProbeTimeout, 3*time.Second)
}

// SessionConfig contains session lifecycle settings.
type SessionConfig struct {
	FlagshipStrategy string `yaml:"flagship_strategy"`
	IdleTTL          string `yaml:"idle_ttl"`
	MaxSessions      int    `yaml:"max_sessions"`
}

// IdleTimeout returns how long an untouched session is kept.
func (s *SessionConfig) IdleTimeout() time.Duration {
	return parseDurationOr(s.IdleTTL, 30*time.Minute)
}

// SchedulerConfig contains cron specs for background jobs.
type SchedulerConfig struct {
	AvailabilityCron string `yaml:"availability_cron"`
	ReaperCron       string `yaml:"reaper_cron"`
}

// RabbitMQConfig contains RabbitMQ connection settings. An empty URL disables events.
type RabbitMQConfig struct {
	URL              string `yaml:"url"`
	Exchange         string `yaml:"exchange"`
	Queue            string `yaml:"queue"`
	PrefetchCount    int    `yaml:"prefetch_count"`
	ReconnectDelay   string `yaml:"reconnect_delay"`
	MaxReconnectWait string `yaml:"max_reconnect_wait"`
}

// Enabled reports whether event publishing is configured.
func (mq *RabbitMQConfig) Enabled() bool {
	return mq.URL != ""
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			HTTPPort:        8082,
			GRPCPort:        50051,
			ShutdownTimeout: "30s",
		},
		Remote: RemoteConfig{
			BaseURL:      "http://localhost:5000/api",
			Timeout:      "30s",
			ProbeTimeout: "3s",
		},
		Session: SessionConfig{
			FlagshipStrategy: "paa",
			IdleTTL:          "30m",
			MaxSessions:      1000,
		},
		Scheduler: SchedulerConfig{
			AvailabilityCron: "@every 30s",
			ReaperCron:       "@every 1m",
		},
		RabbitMQ: RabbitMQConfig{
			URL:              "",
			Exchange:         "allocdesk.events",
			Queue:            "allocdesk.remote",
			PrefetchCount:    10,
			ReconnectDelay:   "5s",
			MaxReconnectWait: "30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
