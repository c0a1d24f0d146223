package main

import "errors"

// generatedHeader prefixes every generated YAML file.
const generatedHeader = "# Code generated by dashgen. DO NOT EDIT.\n"

// KnownMetrics is the set of metric names exported by property-price-tracker
// plus recording rule names referenced in dashboards and alerts.
var KnownMetrics = map[string]bool{
	// HTTP metrics.
	"ppt_http_request_duration_seconds_bucket": true,
	"ppt_http_requests_total":                  true,

	// Health metrics.
	"ppt_healthz_up": true,
	"ppt_readyz_up":  true,

	// Ingestion metrics.
	"ppt_ingestion_listings_total":            true,
	"ppt_ingestion_errors_total":              true,
	"ppt_ingestion_duration_seconds_bucket":   true,
	"ppt_price_history_appends_total":         true,
	"ppt_feed_snapshots_total":                true,
	"ppt_feed_errors_total":                   true,
	"ppt_batch_write_duration_seconds_bucket": true,
	"ppt_write_failures_total":                true,
	"ppt_fatal_rollbacks_total":               true,
	"ppt_partition_halted":                    true,

	// Reconciliation metrics.
	"ppt_sweep_deleted_total": true,
	"ppt_sweep_refused_total": true,

	// Cache metrics.
	"ppt_cache_hits_total":   true,
	"ppt_cache_misses_total": true,
	"ppt_cache_errors_total": true,

	// Notification metrics.
	"ppt_notification_duration_seconds_bucket": true,
	"ppt_notification_failures_total":          true,

	// Recording rules.
	"ppt:http_requests:rate5m":         true,
	"ppt:http_errors:rate5m":           true,
	"ppt:ingestion_listings:rate5m":    true,
	"ppt:ingestion_errors:rate5m":      true,
	"ppt:price_history_appends:rate5m": true,
	"ppt:write_failures:rate5m":        true,

	// Standard Prometheus metrics referenced in dashboards.
	"up":                         true,
	"process_start_time_seconds": true,
}

// Config controls which artifacts the generator produces and where they go.
type Config struct {
	OutputDir        string
	DashboardEnabled bool
	RulesEnabled     bool
}

// DefaultConfig returns a Config that generates all artifacts into ../../deploy
// (relative to tools/dashgen/).
func DefaultConfig() Config {
	return Config{
		OutputDir:        "../../deploy",
		DashboardEnabled: true,
		RulesEnabled:     true,
	}
}

// Validate checks that the config is usable.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory must be set")
	}
	if !c.DashboardEnabled && !c.RulesEnabled {
		return errors.New("at least one of dashboard or rules must be enabled")
	}
	return nil
}
