package config

import "time"

// ServerConfig contains the status server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0,lt=65536"`
}

// StoreConfig selects the database driver and connection string.
// Driver is "pgx" for PostgreSQL or "duckdb" for an embedded database file.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=pgx duckdb"`
	DSN    string `yaml:"dsn"`
}

// GTFSRTConfig contains GTFS-Realtime feed configuration
type GTFSRTConfig struct {
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"required,url"`
	TimeoutMS           int    `yaml:"timeoutMS" validate:"gte=0"`
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds" validate:"gte=0"`
}

// GTFSConfig contains GTFS static bundle configuration
type GTFSConfig struct {
	StaticURL            string   `yaml:"staticURL" validate:"omitempty,url"`
	TimeoutMS            int      `yaml:"timeoutMS" validate:"gte=0"` // whole download
	Categories           []string `yaml:"categories" validate:"dive,required"`
	ExcludedEntries      []string `yaml:"excludedEntries"`
	TableLoadConcurrency int      `yaml:"tableLoadConcurrency" validate:"gte=0"`
	BatchSize            int      `yaml:"batchSize" validate:"gte=0"`
	Schedule             string   `yaml:"schedule"` // cron spec with seconds field
	LoadOnStart          bool     `yaml:"loadOnStart"`
}

// RetryConfig controls delta feed fetch retries
type RetryConfig struct {
	MaxRetryAttempts  int  `yaml:"maxRetryAttempts" validate:"gte=0"`
	RetryDelaySeconds *int `yaml:"retryDelaySeconds" validate:"omitempty,gte=0"` // 0 retries immediately
}

// HTTPConfig contains outbound HTTP settings shared by both fetchers
type HTTPConfig struct {
	UserAgent string  `yaml:"userAgent"`
	RateLimit float64 `yaml:"rateLimit" validate:"gte=0"` // requests per second
	RateBurst int     `yaml:"rateBurst" validate:"gte=0"`
}

// SchedulerConfig contains the cycle driver settings
type SchedulerConfig struct {
	MaxConsecutiveFailures   int `yaml:"maxConsecutiveFailures" validate:"gte=0"`
	HealthLogIntervalSeconds int `yaml:"healthLogIntervalSeconds" validate:"gte=0"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	GTFSRT    GTFSRTConfig    `yaml:"gtfsrt"`
	GTFS      GTFSConfig      `yaml:"gtfs"`
	Retry     RetryConfig     `yaml:"retry"`
	HTTP      HTTPConfig      `yaml:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RetryDelay returns the configured delay between failed fetch attempts.
// An unset value yields the default; an explicit 0 yields 0.
func (c RetryConfig) RetryDelay() time.Duration {
	if c.RetryDelaySeconds == nil {
		return DefaultRetryDelaySeconds * time.Second
	}
	return time.Duration(*c.RetryDelaySeconds) * time.Second
}

// Timeout returns the per-request timeout of the delta feed fetch.
func (c GTFSRTConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Timeout returns the time limit of one bundle download, body included.
func (c GTFSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// PollInterval returns the delay between two delta feed cycles.
func (c GTFSRTConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// HealthLogInterval returns how often the scheduler logs the health status.
func (c SchedulerConfig) HealthLogInterval() time.Duration {
	return time.Duration(c.HealthLogIntervalSeconds) * time.Second
}
