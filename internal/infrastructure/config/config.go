package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Broker drivers
const (
	BrokerMemory = "memory"
	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

// Store drivers for the idempotency fast path and the identity lock
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Event     EventConfig
	Broker    BrokerConfig
	Consumer  ConsumerConfig
	Intake    IntakeConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	MigrateOnStart  bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	ProducerID       string
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	StaleAfter       time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// BrokerConfig selects and configures the message broker
type BrokerConfig struct {
	Driver string // memory, pubsub, kafka
	Topic  string // topic every envelope is published to
	PubSub PubSubConfig
	Kafka  KafkaConfig
}

// PubSubConfig holds Google Cloud Pub/Sub settings
type PubSubConfig struct {
	ProjectID          string
	SubscriptionPrefix string // subscription name is <prefix>-<consumer>
	MaxOutstanding     int
	AckDeadline        time.Duration
}

// KafkaConfig holds Kafka settings
type KafkaConfig struct {
	Brokers      []string
	GroupPrefix  string // consumer group is <prefix>-<consumer>
	MinBytes     int
	MaxBytes     int
	MaxAttempts  int
	BatchTimeout time.Duration
}

// ConsumerConfig holds consumer-side delivery settings
type ConsumerConfig struct {
	IdempotencyStore      string // memory, redis
	IdempotencyTTL        time.Duration
	RedeliveryMax         int
	RedeliveryInitial     time.Duration
	RedeliveryMaxInterval time.Duration
}

// IntakeConfig holds lot intake settings
type IntakeConfig struct {
	LockDriver        string // memory, redis
	LockTTL           time.Duration
	LockRetryInterval time.Duration
	LockRetries       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// Finance approval notifications allowed per operator and window
	ApprovalRateLimit  int
	ApprovalRateWindow time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable tracing
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces and metrics
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	BacklogInterval   time.Duration // How often the outbox backlog gauge is sampled
	LogsEnabled       bool          // Export zap entries through the OTLP logs bridge
	ProfilingEnabled  bool          // Pyroscope continuous profiling
	ProfilingServer   string        // Pyroscope server address
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INVSYNC_ prefix (e.g., INVSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("INVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Version: v.GetString("app.version"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			ProducerID:       v.GetString("event.producer_id"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			StaleAfter:       v.GetDuration("event.stale_after"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			CleanupInterval:  v.GetDuration("event.cleanup_interval"),
		},
		Broker: BrokerConfig{
			Driver: v.GetString("broker.driver"),
			Topic:  v.GetString("broker.topic"),
			PubSub: PubSubConfig{
				ProjectID:          v.GetString("broker.pubsub.project_id"),
				SubscriptionPrefix: v.GetString("broker.pubsub.subscription_prefix"),
				MaxOutstanding:     v.GetInt("broker.pubsub.max_outstanding"),
				AckDeadline:        v.GetDuration("broker.pubsub.ack_deadline"),
			},
			Kafka: KafkaConfig{
				Brokers:      v.GetStringSlice("broker.kafka.brokers"),
				GroupPrefix:  v.GetString("broker.kafka.group_prefix"),
				MinBytes:     v.GetInt("broker.kafka.min_bytes"),
				MaxBytes:     v.GetInt("broker.kafka.max_bytes"),
				MaxAttempts:  v.GetInt("broker.kafka.max_attempts"),
				BatchTimeout: v.GetDuration("broker.kafka.batch_timeout"),
			},
		},
		Consumer: ConsumerConfig{
			IdempotencyStore:      v.GetString("consumer.idempotency_store"),
			IdempotencyTTL:        v.GetDuration("consumer.idempotency_ttl"),
			RedeliveryMax:         v.GetInt("consumer.redelivery_max"),
			RedeliveryInitial:     v.GetDuration("consumer.redelivery_initial"),
			RedeliveryMaxInterval: v.GetDuration("consumer.redelivery_max_interval"),
		},
		Intake: IntakeConfig{
			LockDriver:        v.GetString("intake.lock_driver"),
			LockTTL:           v.GetDuration("intake.lock_ttl"),
			LockRetryInterval: v.GetDuration("intake.lock_retry_interval"),
			LockRetries:       v.GetInt("intake.lock_retries"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),

			ApprovalRateLimit:  v.GetInt("http.approval_rate_limit"),
			ApprovalRateWindow: v.GetDuration("http.approval_rate_window"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			BacklogInterval:   v.GetDuration("telemetry.backlog_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "invsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.ProducerID == "" {
		cfg.Event.ProducerID = cfg.App.Name
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.StaleAfter == 0 {
		cfg.Event.StaleAfter = 5 * time.Minute
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.CleanupInterval == 0 {
		cfg.Event.CleanupInterval = time.Hour
	}
	if cfg.Broker.Driver == "" {
		cfg.Broker.Driver = BrokerMemory
	}
	if cfg.Broker.Topic == "" {
		cfg.Broker.Topic = "invsync.events"
	}
	if cfg.Broker.PubSub.SubscriptionPrefix == "" {
		cfg.Broker.PubSub.SubscriptionPrefix = cfg.App.Name
	}
	if cfg.Broker.PubSub.MaxOutstanding == 0 {
		cfg.Broker.PubSub.MaxOutstanding = 100
	}
	if cfg.Broker.PubSub.AckDeadline == 0 {
		cfg.Broker.PubSub.AckDeadline = 60 * time.Second
	}
	if cfg.Broker.Kafka.GroupPrefix == "" {
		cfg.Broker.Kafka.GroupPrefix = cfg.App.Name
	}
	if cfg.Broker.Kafka.MinBytes == 0 {
		cfg.Broker.Kafka.MinBytes = 1
	}
	if cfg.Broker.Kafka.MaxBytes == 0 {
		cfg.Broker.Kafka.MaxBytes = 10 << 20 // 10MB
	}
	if cfg.Broker.Kafka.MaxAttempts == 0 {
		cfg.Broker.Kafka.MaxAttempts = 5
	}
	if cfg.Broker.Kafka.BatchTimeout == 0 {
		cfg.Broker.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.Consumer.IdempotencyStore == "" {
		cfg.Consumer.IdempotencyStore = StoreMemory
	}
	if cfg.Consumer.IdempotencyTTL == 0 {
		cfg.Consumer.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Consumer.RedeliveryMax == 0 {
		cfg.Consumer.RedeliveryMax = 3
	}
	if cfg.Consumer.RedeliveryInitial == 0 {
		cfg.Consumer.RedeliveryInitial = 50 * time.Millisecond
	}
	if cfg.Consumer.RedeliveryMaxInterval == 0 {
		cfg.Consumer.RedeliveryMaxInterval = time.Second
	}
	if cfg.Intake.LockDriver == "" {
		cfg.Intake.LockDriver = StoreMemory
	}
	if cfg.Intake.LockTTL == 0 {
		cfg.Intake.LockTTL = 10 * time.Second
	}
	if cfg.Intake.LockRetryInterval == 0 {
		cfg.Intake.LockRetryInterval = 50 * time.Millisecond
	}
	if cfg.Intake.LockRetries == 0 {
		cfg.Intake.LockRetries = 20
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.ApprovalRateLimit == 0 {
		cfg.HTTP.ApprovalRateLimit = 60
	}
	if cfg.HTTP.ApprovalRateWindow == 0 {
		cfg.HTTP.ApprovalRateWindow = time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.BacklogInterval == 0 {
		cfg.Telemetry.BacklogInterval = 30 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	// Insecure and DBLogFullSQL default to false
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Broker.Driver {
	case BrokerMemory:
	case BrokerPubSub:
		if c.Broker.PubSub.ProjectID == "" {
			return fmt.Errorf("broker.pubsub.project_id is required for the pubsub driver")
		}
	case BrokerKafka:
		if len(c.Broker.Kafka.Brokers) == 0 {
			return fmt.Errorf("broker.kafka.brokers is required for the kafka driver")
		}
	default:
		return fmt.Errorf("broker.driver must be one of memory, pubsub, kafka, got %q", c.Broker.Driver)
	}

	if err := validateStore("consumer.idempotency_store", c.Consumer.IdempotencyStore); err != nil {
		return err
	}
	if err := validateStore("intake.lock_driver", c.Intake.LockDriver); err != nil {
		return err
	}
	if c.Intake.LockTTL <= 0 {
		return fmt.Errorf("intake.lock_ttl must be positive")
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingServer == "" {
		return fmt.Errorf("telemetry.profiling_server is required when profiling is enabled")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Broker.Driver == BrokerMemory {
			return fmt.Errorf("broker.driver cannot be 'memory' in production (events would not leave the process)")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func validateStore(key, driver string) error {
	if driver != StoreMemory && driver != StoreRedis {
		return fmt.Errorf("%s must be one of memory, redis, got %q", key, driver)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port of the Redis server
func (r *RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
