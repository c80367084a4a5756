package config

import "time"

// Store backend constants
const (
	// BackendDynamoDB stores items in AWS DynamoDB
	BackendDynamoDB = "dynamodb"
	// BackendMongoDB stores items in MongoDB collections
	BackendMongoDB = "mongodb"
	// BackendMemory keeps items in process memory, for local runs and tests
	BackendMemory = "memory"
)

// Config is the root configuration structure of the content store service
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval" yaml:"retrieval"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// HTTPConfig configures the public API server
type HTTPConfig struct {
	Port            int             `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures the per-client token bucket
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// StoreConfig selects and configures the backing store
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Prefix is prepended to the Content and Brief table or collection names.
	Prefix   string         `mapstructure:"prefix" yaml:"prefix"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb" yaml:"dynamodb"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb" yaml:"mongodb"`
}

// DynamoDBConfig configures the DynamoDB client
type DynamoDBConfig struct {
	Region           string        `mapstructure:"region" yaml:"region"`
	Endpoint         string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID      string        `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey  string        `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken     string        `mapstructure:"session_token" yaml:"session_token"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	TableWait        time.Duration `mapstructure:"table_wait" yaml:"table_wait"`
}

// MongoDBConfig configures the MongoDB client
type MongoDBConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Database         string        `mapstructure:"database" yaml:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
}

// RetrievalConfig holds the default limits, page sizes and throttle of reads
type RetrievalConfig struct {
	ListLimit         int           `mapstructure:"list_limit" yaml:"list_limit"`
	QueryTSLimit      int           `mapstructure:"query_ts_limit" yaml:"query_ts_limit"`
	FeaturedLimit     int           `mapstructure:"featured_limit" yaml:"featured_limit"`
	ScanPageSize      int           `mapstructure:"scan_page_size" yaml:"scan_page_size"`
	ScanBriefPageSize int           `mapstructure:"scan_brief_page_size" yaml:"scan_brief_page_size"`
	QueryPageSize     int           `mapstructure:"query_page_size" yaml:"query_page_size"`
	Throttle          time.Duration `mapstructure:"throttle" yaml:"throttle"`
}

// ObservabilityConfig configures logging, metrics and tracing
type ObservabilityConfig struct {
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat      string        `mapstructure:"log_format" yaml:"log_format"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	Tracing        TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// TracingConfig configures the OTLP exporter
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "contentstore",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Store: StoreConfig{
			Backend: BackendDynamoDB,
			Prefix:  "Dev_",
			DynamoDB: DynamoDBConfig{
				Region:           "us-east-1",
				OperationTimeout: 5 * time.Second,
				TableWait:        2 * time.Minute,
			},
			MongoDB: MongoDBConfig{
				Database:         "contentstore",
				ConnectTimeout:   5 * time.Second,
				OperationTimeout: 5 * time.Second,
			},
		},
		Retrieval: RetrievalConfig{
			ListLimit:         5,
			QueryTSLimit:      10,
			FeaturedLimit:     5,
			ScanPageSize:      1,
			ScanBriefPageSize: 10,
			QueryPageSize:     10,
			Throttle:          time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
			Tracing: TracingConfig{
				Endpoint:   "localhost:4317",
				SampleRate: 0.1,
			},
		},
	}
}
