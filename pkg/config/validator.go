package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Validate checks the config for:
//   - Thresholds that cannot be compared against
//   - Non-positive timeouts, sizes and refresh intervals
//   - Unknown enum values (log format, ingest source)
func Validate(cfg *Config) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		add("log.format: %q is not one of console, json", cfg.Log.Format)
	}

	if cfg.Artifacts == "" {
		add("artifacts: directory is required")
	}

	if t := cfg.Thresholds.IsolationForest; math.IsNaN(t) || math.IsInf(t, 0) {
		add("thresholds.isolation_forest: %v is not finite", t)
	}
	if t := cfg.Thresholds.Autoencoder; math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		add("thresholds.autoencoder: %v must be finite and non-negative", t)
	}

	if cfg.Server.Addr == "" {
		add("server.addr: address is required")
	}
	for _, d := range []struct {
		name string
		d    time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"ingest.timeout", cfg.Ingest.Timeout},
		{"dashboard.refresh", cfg.Dashboard.Refresh},
	} {
		if d.d <= 0 {
			add("%s: must be positive", d.name)
		}
	}
	if cfg.Ingest.Delay < 0 {
		add("ingest.delay: must not be negative")
	}

	if cfg.Store.Path == "" {
		add("store.path: path is required")
	}

	if cfg.Ingest.URL == "" {
		add("ingest.url: url is required")
	}
	if cfg.Ingest.Count == 0 {
		add("ingest.count: must be non-zero (negative streams forever)")
	}
	switch cfg.Ingest.Source {
	case "generator":
	case "csv":
		if cfg.Ingest.CSV == "" {
			add("ingest.csv: file is required when source is csv")
		}
	default:
		add("ingest.source: %q is not one of generator, csv", cfg.Ingest.Source)
	}

	tr := cfg.Train
	if tr.Rows <= 0 {
		add("train.rows: must be positive")
	}
	if tr.TopCountries <= 0 || tr.TopMerchants <= 0 {
		add("train.top_countries/top_merchants: must be positive")
	}
	if tr.Trees <= 0 || tr.SampleSize < 2 {
		add("train.trees/sample_size: need at least one tree and two samples per tree")
	}
	if tr.Contamination < 0 || tr.Contamination > 0.5 {
		add("train.contamination: %v is outside [0, 0.5]", tr.Contamination)
	}
	for i, h := range tr.Hidden {
		if h <= 0 {
			add("train.hidden[%d]: width must be positive", i)
		}
	}
	if tr.Bottleneck < 0 {
		add("train.bottleneck: must not be negative (0 derives it from the input width)")
	}
	if tr.Epochs <= 0 || tr.BatchSize <= 0 {
		add("train.epochs/batch_size: must be positive")
	}
	if tr.LearningRate <= 0 {
		add("train.learning_rate: must be positive")
	}
	if tr.Patience < 0 {
		add("train.patience: must not be negative")
	}
	if tr.ValidationSplit < 0 || tr.ValidationSplit >= 1 {
		add("train.validation_split: %v is outside [0, 1)", tr.ValidationSplit)
	}

	if cfg.Dashboard.Limit <= 0 {
		add("dashboard.limit: must be positive")
	}
	if cfg.Dashboard.StaticAfter < 0 {
		add("dashboard.static_after: must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
