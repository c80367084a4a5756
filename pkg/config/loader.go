package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowfatcats/contentstore/pkg/observability/logger"
)

// ErrInvalidConfig classifies validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// ViperLoader loads configuration with precedence: flags > ENV > file > defaults
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      map[string]*pflag.Flag
	v          *viper.Viper
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "CONTENTSTORE")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
		flags:      map[string]*pflag.Flag{},
	}
}

// WithFlag binds a command line flag to a configuration key. Unset flags
// leave the key to the lower layers.
func (l *ViperLoader) WithFlag(key string, flag *pflag.Flag) *ViperLoader {
	if flag != nil {
		l.flags[key] = flag
	}
	return l
}

// ConfigFile returns the path of the configuration file, or empty string if none.
func (l *ViperLoader) ConfigFile() string {
	return l.configFile
}

// Load reads, merges and validates the configuration.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	if err := l.bindEnvVars(v); err != nil {
		return nil, err
	}
	for key, flag := range l.flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	l.v = v
	return &cfg, nil
}

// AllSettings returns the merged settings of the last successful Load.
func (l *ViperLoader) AllSettings() map[string]any {
	if l.v == nil {
		return map[string]any{}
	}
	return l.v.AllSettings()
}

// legacyEnv lists unprefixed variable names still honoured for a key.
var legacyEnv = map[string][]string{
	"store.dynamodb.endpoint": {"DYNAMO_DB_ENDPOINT"},
	"store.dynamodb.region":   {"STORE_REGION"},
	"store.prefix":            {"STORE_PREFIX"},
}

// bindEnvVars binds every key to PREFIX_SECTION_FIELD. Prefixed names win
// over legacy ones.
func (l *ViperLoader) bindEnvVars(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		names := append([]string{l.envName(key)}, legacyEnv[key]...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// envName maps "store.dynamodb.endpoint" to "CONTENTSTORE_STORE_DYNAMODB_ENDPOINT".
func (l *ViperLoader) envName(key string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "CONTENTSTORE"
	}
	return strings.ToUpper(prefix + "_" + strings.ReplaceAll(key, ".", "_"))
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	v.SetDefault("http.rate_limit.enabled", cfg.HTTP.RateLimit.Enabled)
	v.SetDefault("http.rate_limit.requests_per_second", cfg.HTTP.RateLimit.RequestsPerSecond)
	v.SetDefault("http.rate_limit.burst", cfg.HTTP.RateLimit.Burst)

	v.SetDefault("store.backend", cfg.Store.Backend)
	v.SetDefault("store.prefix", cfg.Store.Prefix)
	v.SetDefault("store.dynamodb.region", cfg.Store.DynamoDB.Region)
	v.SetDefault("store.dynamodb.endpoint", cfg.Store.DynamoDB.Endpoint)
	v.SetDefault("store.dynamodb.access_key_id", cfg.Store.DynamoDB.AccessKeyID)
	v.SetDefault("store.dynamodb.secret_access_key", cfg.Store.DynamoDB.SecretAccessKey)
	v.SetDefault("store.dynamodb.session_token", cfg.Store.DynamoDB.SessionToken)
	v.SetDefault("store.dynamodb.operation_timeout", cfg.Store.DynamoDB.OperationTimeout)
	v.SetDefault("store.dynamodb.table_wait", cfg.Store.DynamoDB.TableWait)
	v.SetDefault("store.mongodb.url", cfg.Store.MongoDB.URL)
	v.SetDefault("store.mongodb.database", cfg.Store.MongoDB.Database)
	v.SetDefault("store.mongodb.connect_timeout", cfg.Store.MongoDB.ConnectTimeout)
	v.SetDefault("store.mongodb.operation_timeout", cfg.Store.MongoDB.OperationTimeout)

	v.SetDefault("retrieval.list_limit", cfg.Retrieval.ListLimit)
	v.SetDefault("retrieval.query_ts_limit", cfg.Retrieval.QueryTSLimit)
	v.SetDefault("retrieval.featured_limit", cfg.Retrieval.FeaturedLimit)
	v.SetDefault("retrieval.scan_page_size", cfg.Retrieval.ScanPageSize)
	v.SetDefault("retrieval.scan_brief_page_size", cfg.Retrieval.ScanBriefPageSize)
	v.SetDefault("retrieval.query_page_size", cfg.Retrieval.QueryPageSize)
	v.SetDefault("retrieval.throttle", cfg.Retrieval.Throttle)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.tracing.enabled", cfg.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", cfg.Observability.Tracing.Endpoint)
	v.SetDefault("observability.tracing.sample_rate", cfg.Observability.Tracing.SampleRate)
	v.SetDefault("observability.tracing.insecure", cfg.Observability.Tracing.Insecure)
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		add("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.RateLimit.Enabled && (c.HTTP.RateLimit.RequestsPerSecond <= 0 || c.HTTP.RateLimit.Burst <= 0) {
		add("http.rate_limit requires positive requests_per_second and burst")
	}

	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.DynamoDB.Region == "" {
			add("store.dynamodb.region is required")
		}
	case BackendMongoDB:
		if c.Store.MongoDB.URL == "" {
			add("store.mongodb.url is required")
		}
		if c.Store.MongoDB.Database == "" {
			add("store.mongodb.database is required")
		}
	case BackendMemory:
	default:
		add("invalid store.backend: %q (must be one of: %s, %s, %s)", c.Store.Backend, BackendDynamoDB, BackendMongoDB, BackendMemory)
	}

	r := c.Retrieval
	for name, n := range map[string]int{
		"list_limit":           r.ListLimit,
		"query_ts_limit":       r.QueryTSLimit,
		"featured_limit":       r.FeaturedLimit,
		"scan_page_size":       r.ScanPageSize,
		"scan_brief_page_size": r.ScanBriefPageSize,
		"query_page_size":      r.QueryPageSize,
	} {
		if n <= 0 {
			add("retrieval.%s must be positive, got %d", name, n)
		}
	}
	if r.Throttle < 0 {
		add("retrieval.throttle must not be negative")
	}

	if _, err := logger.ParseLogLevel(c.Observability.LogLevel); err != nil {
		add("observability.log_level: %v", err)
	}
	if _, err := logger.ParseLogFormat(c.Observability.LogFormat); err != nil {
		add("observability.log_format: %v", err)
	}
	if t := c.Observability.Tracing; t.Enabled {
		if t.Endpoint == "" {
			add("observability.tracing.endpoint is required when tracing is enabled")
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			add("observability.tracing.sample_rate must be between 0 and 1")
		}
	}

	return errors.Join(errs...)
}

const redactedValue = "****"

// Redacted returns a copy with credentials masked, suitable for printing.
func (c Config) Redacted() Config {
	if c.Store.DynamoDB.SecretAccessKey != "" {
		c.Store.DynamoDB.SecretAccessKey = redactedValue
	}
	if c.Store.DynamoDB.SessionToken != "" {
		c.Store.DynamoDB.SessionToken = redactedValue
	}
	if u, err := url.Parse(c.Store.MongoDB.URL); err == nil && u.User != nil {
		c.Store.MongoDB.URL = u.Redacted()
	}
	return c
}
