package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bridge.port")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// validMQTTSchemes are the broker URL schemes paho accepts
var validMQTTSchemes = []string{"tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validateTimeouts()...)
	errors = append(errors, c.validateWait()...)
	errors = append(errors, c.validateBatch()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateReport()...)

	return errors
}

// validateBridge validates the BridgeConfig
func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(c.Bridge.BaseURL)
	switch {
	case c.Bridge.BaseURL == "":
		errors = append(errors, ValidationError{
			Field:   "bridge.base_url",
			Value:   c.Bridge.BaseURL,
			Message: "must not be empty",
		})
	case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errors = append(errors, ValidationError{
			Field:   "bridge.base_url",
			Value:   c.Bridge.BaseURL,
			Message: "must be an absolute http or https URL",
		})
	}

	if strings.TrimSpace(c.Bridge.Host) == "" {
		errors = append(errors, ValidationError{
			Field:   "bridge.host",
			Value:   c.Bridge.Host,
			Message: "must not be empty",
		})
	}

	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "bridge.port",
			Value:   c.Bridge.Port,
			Message: "must be between 1 and 65535",
		})
	}

	return errors
}

// validateTimeouts validates the TimeoutsConfig
func (c *Config) validateTimeouts() []ValidationError {
	var errors []ValidationError

	// A minute is far beyond any sensible bridge round trip
	const maxTimeoutMs = 60000

	fields := []struct {
		name  string
		value int
	}{
		{"timeouts.command_ms", c.Timeouts.CommandMs},
		{"timeouts.open_close_ms", c.Timeouts.OpenCloseMs},
	}
	for _, f := range fields {
		if f.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: "must be positive",
			})
		} else if f.value > maxTimeoutMs {
			errors = append(errors, ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: fmt.Sprintf("exceeds maximum of %dms", maxTimeoutMs),
			})
		}
	}

	return errors
}

// validateWait validates the WaitConfig
func (c *Config) validateWait() []ValidationError {
	var errors []ValidationError

	if c.Wait.NewVerbMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "wait.new_verb_ms",
			Value:   c.Wait.NewVerbMs,
			Message: "must be non-negative",
		})
	}
	if c.Wait.DefaultMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "wait.default_ms",
			Value:   c.Wait.DefaultMs,
			Message: "must be non-negative",
		})
	}

	// The bridge holds the HTTP request open for waitMs, so the command
	// timeout has to leave room for it.
	longest := max(c.Wait.NewVerbMs, c.Wait.DefaultMs)
	if c.Timeouts.CommandMs > 0 && longest >= c.Timeouts.CommandMs {
		errors = append(errors, ValidationError{
			Field:   "wait",
			Value:   longest,
			Message: fmt.Sprintf("must be less than timeouts.command_ms (%d)", c.Timeouts.CommandMs),
		})
	}

	return errors
}

// validateBatch validates the BatchConfig
func (c *Config) validateBatch() []ValidationError {
	var errors []ValidationError

	if c.Batch.InterCommandDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "batch.inter_command_delay_ms",
			Value:   c.Batch.InterCommandDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Batch.CloseGraceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "batch.close_grace_ms",
			Value:   c.Batch.CloseGraceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateReport validates the ReportConfig
func (c *Config) validateReport() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidReportFormats(), c.Report.Format) {
		errors = append(errors, ValidationError{
			Field:   "report.format",
			Value:   c.Report.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReportFormats(), ", ")),
		})
	}

	m := c.Report.MQTT
	if m.Broker == "" {
		return errors
	}

	if u, err := url.Parse(m.Broker); err != nil || !slices.Contains(validMQTTSchemes, u.Scheme) || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "report.mqtt.broker",
			Value:   m.Broker,
			Message: fmt.Sprintf("must be a broker URL with scheme %s", strings.Join(validMQTTSchemes, ", ")),
		})
	}

	if strings.TrimSpace(m.TopicPrefix) == "" {
		errors = append(errors, ValidationError{
			Field:   "report.mqtt.topic_prefix",
			Value:   m.TopicPrefix,
			Message: "must not be empty when a broker is set",
		})
	} else if strings.ContainsAny(m.TopicPrefix, "+#") {
		errors = append(errors, ValidationError{
			Field:   "report.mqtt.topic_prefix",
			Value:   m.TopicPrefix,
			Message: "must not contain MQTT wildcards (+ or #)",
		})
	}

	if m.QoS < 0 || m.QoS > 2 {
		errors = append(errors, ValidationError{
			Field:   "report.mqtt.qos",
			Value:   m.QoS,
			Message: "must be 0, 1 or 2",
		})
	}

	if m.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "report.mqtt.timeout_ms",
			Value:   m.TimeoutMs,
			Message: "must be positive",
		})
	}

	return errors
}
