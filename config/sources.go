package config

import (
	"fmt"
	"time"
)

// SourceConfig describes one upstream schedule publisher.
type SourceConfig struct {
	// ID keys snapshots and subscriptions; it must stay stable across runs.
	ID string `json:"id"`
	// Kind selects the payload shape: "pattern" or "grid".
	Kind string `json:"kind"`
	// URL is the endpoint the fetcher polls.
	URL string `json:"url"`
	// SlotTablePath points at a YAML slot boundary table. Grid sources
	// only; empty means the hourly default.
	SlotTablePath string `json:"slot_table_path"`
}

// Validate checks mandatory fields.
func (c SourceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Kind != "pattern" && c.Kind != "grid" {
		return fmt.Errorf("unknown source kind %s", c.Kind)
	}
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.SlotTablePath != "" && c.Kind != "grid" {
		return fmt.Errorf("slot_table_path only applies to grid sources")
	}
	return nil
}

// PollConfig tunes the polling cadence.
type PollConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	SendDelayMS     int `json:"send_delay_ms"`
}

// SetDefaults applies the standard cadence.
func (c *PollConfig) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 300
	}
	if c.SendDelayMS <= 0 {
		c.SendDelayMS = 500
	}
}

// Validate checks the cadence bounds.
func (c PollConfig) Validate() error {
	if c.IntervalSeconds < 10 {
		return fmt.Errorf("interval_seconds must be at least 10")
	}
	return nil
}

// Interval returns the cycle period as a duration.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SendDelay returns the inter-delivery pause as a duration.
func (c PollConfig) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMS) * time.Millisecond
}

// StoreConfig locates the snapshot database.
type StoreConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "svitlo.db"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// APIConfig configures the admin HTTP surface.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token guards the endpoints; empty disables the check.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("addr is required when the api is enabled")
	}
	return nil
}

// MetricsConfig configures the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":2112"
	}
}

// Validate checks the enabled sinks' settings.
func (c MetricsConfig) Validate() error {
	if c.InfluxEnabled && c.InfluxURL == "" {
		return fmt.Errorf("influx_url is required when influx is enabled")
	}
	return nil
}
