// Package config loads the aegis YAML configuration and watches it for
// changes.
package config

import "time"

// Config is the root of the configuration file.
type Config struct {
	Log        LogConfig       `yaml:"log"`
	Artifacts  string          `yaml:"artifacts"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Server     ServerConfig    `yaml:"server"`
	Store      StoreConfig     `yaml:"store"`
	Ingest     IngestConfig    `yaml:"ingest"`
	Train      TrainConfig     `yaml:"train"`
	Dashboard  DashboardConfig `yaml:"dashboard"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// ThresholdConfig holds the ensemble decision thresholds. They are the only
// section a running server picks up on reload.
type ThresholdConfig struct {
	IsolationForest float64 `yaml:"isolation_forest"`
	Autoencoder     float64 `yaml:"autoencoder"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type IngestConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	Delay    time.Duration `yaml:"delay"`
	// Count of generated transactions; negative streams until interrupted.
	Count    int           `yaml:"count"`
	Seed     int64         `yaml:"seed"`
	StampNow bool          `yaml:"stamp_now"`
	Source   string        `yaml:"source"` // generator | csv
	CSV      string        `yaml:"csv"`
}

type TrainConfig struct {
	Data            string  `yaml:"data"`
	Rows            int     `yaml:"rows"`
	TopCountries    int     `yaml:"top_countries"`
	TopMerchants    int     `yaml:"top_merchants"`
	Trees           int     `yaml:"trees"`
	SampleSize      int     `yaml:"sample_size"`
	Contamination   float64 `yaml:"contamination"`
	Hidden          []int   `yaml:"hidden"`
	Bottleneck      int     `yaml:"bottleneck"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	Patience        int     `yaml:"patience"`
	// ValidationSplit is the trailing fraction held out for early stopping.
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            int64   `yaml:"seed"`
}

type DashboardConfig struct {
	Refresh     time.Duration `yaml:"refresh"`
	Limit       int           `yaml:"limit"`
	StaticAfter int           `yaml:"static_after"`
}
