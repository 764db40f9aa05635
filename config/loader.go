package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by LoadAppConfig.
const (
	EnvConfigPath = "GTFS_INGEST_CONFIG"
	EnvStoreDSN   = "GTFS_INGEST_STORE_DSN"
)

// Default values applied to zero fields after parsing.
const (
	DefaultPort                   = 16181
	DefaultStoreDriver            = "duckdb"
	DefaultStoreDSN               = "gtfs.duckdb"
	DefaultTimeoutMS              = 30000
	DefaultBundleTimeoutMS        = 600000
	DefaultPollIntervalSeconds    = 60
	DefaultTableLoadConcurrency   = 1
	DefaultBatchSize              = 999999
	DefaultSchedule               = "0 0 3 * * *"
	DefaultMaxRetryAttempts       = 3
	DefaultRetryDelaySeconds      = 5
	DefaultUserAgent              = "gtfsrt-ingest/1.0"
	DefaultRateLimit              = 2.0
	DefaultRateBurst              = 4
	DefaultMaxConsecutiveFailures = 5
	DefaultHealthLogInterval      = 300
	DefaultLogLevel               = "info"
)

// DefaultExcludedEntries lists bundle entries that are never loaded.
var DefaultExcludedEntries = []string{"agency.txt"}

// Config is the global application configuration
var Config AppConfig

// LoadAppConfig loads and validates the application configuration from config.yml,
// or from the file named by GTFS_INGEST_CONFIG when set.
func LoadAppConfig() error {
	paths := []string{"config.yml", "./config/config.yml"}
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = []string{p}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	if dsn := os.Getenv(EnvStoreDSN); dsn != "" {
		cfg.Store.DSN = dsn
	}
	Config = cfg
	return nil
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return AppConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued setting with its default.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.DSN == "" && c.Store.Driver == DefaultStoreDriver {
		c.Store.DSN = DefaultStoreDSN
	}
	if c.GTFSRT.TimeoutMS == 0 {
		c.GTFSRT.TimeoutMS = DefaultTimeoutMS
	}
	if c.GTFSRT.PollIntervalSeconds == 0 {
		c.GTFSRT.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.GTFS.ExcludedEntries == nil {
		c.GTFS.ExcludedEntries = append([]string(nil), DefaultExcludedEntries...)
	}
	if c.GTFS.TimeoutMS == 0 {
		c.GTFS.TimeoutMS = DefaultBundleTimeoutMS
	}
	if c.GTFS.TableLoadConcurrency == 0 {
		c.GTFS.TableLoadConcurrency = DefaultTableLoadConcurrency
	}
	if c.GTFS.BatchSize == 0 {
		c.GTFS.BatchSize = DefaultBatchSize
	}
	if c.GTFS.Schedule == "" {
		c.GTFS.Schedule = DefaultSchedule
	}
	if c.Retry.MaxRetryAttempts == 0 {
		c.Retry.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if c.Retry.RetryDelaySeconds == nil {
		d := DefaultRetryDelaySeconds
		c.Retry.RetryDelaySeconds = &d
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = DefaultUserAgent
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = DefaultRateLimit
	}
	if c.HTTP.RateBurst == 0 {
		c.HTTP.RateBurst = DefaultRateBurst
	}
	if c.Scheduler.MaxConsecutiveFailures == 0 {
		c.Scheduler.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.Scheduler.HealthLogIntervalSeconds == 0 {
		c.Scheduler.HealthLogIntervalSeconds = DefaultHealthLogInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}
