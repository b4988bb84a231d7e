package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors: " + strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[cfg.Env] {
		errs = append(errs, ValidationError{
			Field:   "env",
			Message: "must be one of: development, staging, production, test",
		})
	}

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateRabbitMQ(&cfg.RabbitMQ)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(s *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.grpc_port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.http_port",
			Message: "must be a valid port number (1-65535)",
		})
	}
	if s.GRPCPort == s.HTTPPort {
		errs = append(errs, ValidationError{
			Field:   "server.grpc_port/http_port",
			Message: "gRPC and HTTP ports must be different",
		})
	}
	errs = append(errs, validateDuration("server.shutdown_timeout", s.ShutdownTimeout)...)

	return errs
}

func validateRemote(r *RemoteConfig) ValidationErrors {
	var errs ValidationErrors

	if r.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.base_url",
			Message: "is required",
		})
	} else if u, err := url.Parse(r.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.base_url",
			Message: "must be an absolute http:// or https:// URL",
		})
	}
	errs = append(errs, validateDuration("remote.timeout", r.Timeout)...)
	errs = append(errs, validateDuration("remote.probe_timeout", r.ProbeTimeout)...)

	return errs
}

func validateSession(s *SessionConfig) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(s.FlagshipStrategy) == "" {
		errs = append(errs, ValidationError{
			Field:   "session.flagship_strategy",
			Message: "is required",
		})
	}
	if s.MaxSessions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.max_sessions",
			Message: "must be greater than 0",
		})
	}
	errs = append(errs, validateDuration("session.idle_ttl", s.IdleTTL)...)

	return errs
}

func validateScheduler(s *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := cron.ParseStandard(s.AvailabilityCron); err != nil {
		errs = append(errs, ValidationError{
			Field:   "scheduler.availability_cron",
			Message: fmt.Sprintf("invalid cron spec: %v", err),
		})
	}
	if _, err := cron.ParseStandard(s.ReaperCron); err != nil {
		errs = append(errs, ValidationError{
			Field:   "scheduler.reaper_cron",
			Message: fmt.Sprintf("invalid cron spec: %v", err),
		})
	}

	return errs
}

func validateRabbitMQ(mq *RabbitMQConfig) ValidationErrors {
	var errs ValidationErrors

	if !mq.Enabled() {
		return nil
	}

	if !strings.HasPrefix(mq.URL, "amqp://") && !strings.HasPrefix(mq.URL, "amqps://") {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.url",
			Message: "must start with amqp:// or amqps://",
		})
	}

	if mq.Exchange == "" {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.exchange",
			Message: "is required",
		})
	}

	if mq.PrefetchCount <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rabbitmq.prefetch_count",
			Message: "must be greater than 0",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[l.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, console",
		})
	}

	return errs
}

func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	if d, err := time.ParseDuration(value); err != nil || d <= 0 {
		return ValidationErrors{{Field: field, Message: "must be a positive duration (e.g. 30s)"}}
	}
	return nil
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
