// Package config provides configuration management for the vehicle-tracking service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "VTRACK"

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Remote processor transports.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Case store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all configuration for the vehicle-tracking service.
type Config struct {
	// Server contains HTTP trigger server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings for the postgres case store.
	Database DatabaseConfig `mapstructure:"database"`
	// Temporal contains orchestration server settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Worker contains worker process sizing.
	Worker WorkerConfig `mapstructure:"worker"`
	// Processor contains the remote video processor endpoint.
	Processor ProcessorConfig `mapstructure:"processor"`
	// CaseStore selects and configures the case-state backend.
	CaseStore CaseStoreConfig `mapstructure:"casestore"`
	// Kafka contains result-event and cancel-request topic settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// RateLimit bounds the rate of HTTP processing triggers.
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown,
	// including background workflow executions.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations when the server starts.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// TemporalConfig holds orchestration server settings.
type TemporalConfig struct {
	// HostPort is the Temporal frontend address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue shared by clients and workers.
	TaskQueue string `mapstructure:"task_queue"`
	// ConnectionTimeout bounds the initial dial.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// TLS configures mutual TLS to the frontend.
	TLS TemporalTLSConfig `mapstructure:"tls"`
}

// TemporalTLSConfig holds PEM file paths for TLS to the Temporal frontend.
type TemporalTLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertPath   string `mapstructure:"cert_path"`
	KeyPath    string `mapstructure:"key_path"`
	CACertPath string `mapstructure:"ca_cert_path"`
	ServerName string `mapstructure:"server_name"`
}

// WorkerConfig sizes the worker process.
type WorkerConfig struct {
	// MaxConcurrentActivities bounds concurrent remote invocations.
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	// MaxConcurrentWorkflows bounds concurrent workflow tasks.
	MaxConcurrentWorkflows int `mapstructure:"max_concurrent_workflows"`
	// ShutdownGracePeriod is how long in-flight activities may run after a
	// stop signal.
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	// HeartbeatInterval is how often the invoker reports liveness. It must be
	// shorter than the 30s heartbeat timeout.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// ProcessorConfig locates the remote video processor.
type ProcessorConfig struct {
	// Transport is grpc or http.
	Transport string `mapstructure:"transport"`
	// Address is host:port for grpc or a base URL for http.
	Address string `mapstructure:"address"`
	// DialTimeout bounds connection establishment per attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// RequestsPerSecond limits outbound HTTP calls. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// Burst is the limiter burst size.
	Burst int `mapstructure:"burst"`
}

// CaseStoreConfig selects the case-state backend.
type CaseStoreConfig struct {
	// Backend is file, postgres or redis.
	Backend string `mapstructure:"backend"`
	// Dir holds one JSON document per case for the file backend.
	Dir string `mapstructure:"dir"`
	// RedisAddr is the Redis address for the redis backend.
	RedisAddr string `mapstructure:"redis_addr"`
	// RedisPassword is loaded from VTRACK_CASESTORE_REDIS_PASSWORD only.
	RedisPassword string `mapstructure:"-"`
	// RedisDB selects the Redis logical database.
	RedisDB int `mapstructure:"redis_db"`
	// KeyPrefix namespaces case keys in Redis.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	// Enabled controls whether result events are published and cancel
	// requests consumed.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// ResultTopic receives one event per finished background job.
	ResultTopic string `mapstructure:"result_topic"`
	// CancelTopic carries operator cancel requests.
	CancelTopic string `mapstructure:"cancel_topic"`
	// GroupID is the consumer group of the cancel listener.
	GroupID string `mapstructure:"group_id"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// RateLimitConfig bounds inbound processing triggers.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// FlagBinding maps a command-line flag onto a configuration key. A flag
// that was set explicitly overrides the environment and config file.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Load loads configuration from defaults, an optional config file,
// environment variables and the given flag bindings.
func Load(bindings ...FlagBinding) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vehicle-tracking")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, b := range bindings {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %q: %w", b.Flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.CaseStore.RedisPassword = os.Getenv(EnvPrefix + "_CASESTORE_REDIS_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "vtrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "vehicle_tracking")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "vehicle-tracking")
	v.SetDefault("temporal.connection_timeout", "10s")
	v.SetDefault("temporal.tls.enabled", false)
	v.SetDefault("temporal.tls.cert_path", "")
	v.SetDefault("temporal.tls.key_path", "")
	v.SetDefault("temporal.tls.ca_cert_path", "")
	v.SetDefault("temporal.tls.server_name", "")

	// Worker defaults
	v.SetDefault("worker.max_concurrent_activities", 5)
	v.SetDefault("worker.max_concurrent_workflows", 10)
	v.SetDefault("worker.shutdown_grace_period", "30s")
	v.SetDefault("worker.heartbeat_interval", "10s")

	// Remote processor defaults
	v.SetDefault("processor.transport", TransportGRPC)
	v.SetDefault("processor.address", "localhost:50051")
	v.SetDefault("processor.dial_timeout", "10s")
	v.SetDefault("processor.requests_per_second", 0.0)
	v.SetDefault("processor.burst", 1)

	// Case store defaults
	v.SetDefault("casestore.backend", BackendFile)
	v.SetDefault("casestore.dir", "data/cases")
	v.SetDefault("casestore.redis_addr", "localhost:6379")
	v.SetDefault("casestore.redis_db", 0)
	v.SetDefault("casestore.key_prefix", "vtrack:case:")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.result_topic", "vehicle-tracking.job-results")
	v.SetDefault("kafka.cancel_topic", "vehicle-tracking.cancel-requests")
	v.SetDefault("kafka.group_id", "vehicle-tracking-server")
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Trigger rate limit defaults
	v.SetDefault("ratelimit.requests_per_second", 5.0)
	v.SetDefault("ratelimit.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal host_port is required")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal task_queue is required")
	}

	if c.Worker.MaxConcurrentActivities <= 0 {
		return fmt.Errorf("worker max_concurrent_activities must be positive")
	}
	if c.Worker.MaxConcurrentWorkflows <= 0 {
		return fmt.Errorf("worker max_concurrent_workflows must be positive")
	}
	if c.Worker.ShutdownGracePeriod < 0 {
		return fmt.Errorf("worker shutdown_grace_period must not be negative")
	}
	if c.Worker.HeartbeatInterval <= 0 || c.Worker.HeartbeatInterval >= 30*time.Second {
		return fmt.Errorf("worker heartbeat_interval must be in (0s, 30s), got %s", c.Worker.HeartbeatInterval)
	}

	switch c.Processor.Transport {
	case TransportGRPC, TransportHTTP:
	default:
		return fmt.Errorf("invalid processor transport: %q", c.Processor.Transport)
	}
	if c.Processor.Address == "" {
		return fmt.Errorf("processor address is required")
	}
	if c.Processor.RequestsPerSecond < 0 {
		return fmt.Errorf("processor requests_per_second must not be negative")
	}

	switch c.CaseStore.Backend {
	case BackendFile:
		if c.CaseStore.Dir == "" {
			return fmt.Errorf("casestore dir is required for the file backend")
		}
	case BackendRedis:
		if c.CaseStore.RedisAddr == "" {
			return fmt.Errorf("casestore redis_addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	default:
		return fmt.Errorf("invalid casestore backend: %q", c.CaseStore.Backend)
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.ResultTopic == "" || c.Kafka.CancelTopic == "" {
			return fmt.Errorf("kafka result_topic and cancel_topic are required when kafka is enabled")
		}
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}
