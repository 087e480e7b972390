package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearInvsyncEnv unsets every INVSYNC_ variable for the duration of the test
func clearInvsyncEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "INVSYNC_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearInvsyncEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "invsync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "invsync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, BrokerMemory, cfg.Broker.Driver)
		assert.Equal(t, "invsync.events", cfg.Broker.Topic)
		assert.Equal(t, "invsync", cfg.Event.ProducerID)
		assert.Equal(t, 5*time.Minute, cfg.Event.StaleAfter)
		assert.Equal(t, StoreMemory, cfg.Consumer.IdempotencyStore)
		assert.Equal(t, 24*time.Hour, cfg.Consumer.IdempotencyTTL)
		assert.Equal(t, StoreMemory, cfg.Intake.LockDriver)
		assert.Equal(t, 10*time.Second, cfg.Intake.LockTTL)
		assert.Equal(t, "invsync", cfg.Telemetry.ServiceName)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, 60, cfg.HTTP.ApprovalRateLimit)
		assert.Equal(t, time.Minute, cfg.HTTP.ApprovalRateWindow)
		assert.False(t, cfg.Database.MigrateOnStart)
	})

	t.Run("loads values from environment variables with INVSYNC prefix", func(t *testing.T) {
		clearInvsyncEnv(t)
		t.Setenv("INVSYNC_APP_NAME", "test-app")
		t.Setenv("INVSYNC_DATABASE_HOST", "testdb.local")
		t.Setenv("INVSYNC_DATABASE_PORT", "5433")
		t.Setenv("INVSYNC_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("INVSYNC_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("INVSYNC_BROKER_DRIVER", "kafka")
		t.Setenv("INVSYNC_BROKER_KAFKA_BROKERS", "k1:9092 k2:9092")
		t.Setenv("INVSYNC_CONSUMER_IDEMPOTENCY_STORE", "redis")
		t.Setenv("INVSYNC_INTAKE_LOCK_TTL", "3s")
		t.Setenv("INVSYNC_DATABASE_MIGRATE_ON_START", "true")
		t.Setenv("INVSYNC_HTTP_APPROVAL_RATE_LIMIT", "5")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "test-app", cfg.Event.ProducerID)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, BrokerKafka, cfg.Broker.Driver)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
		assert.Equal(t, "test-app", cfg.Broker.Kafka.GroupPrefix)
		assert.Equal(t, StoreRedis, cfg.Consumer.IdempotencyStore)
		assert.Equal(t, 3*time.Second, cfg.Intake.LockTTL)
		assert.True(t, cfg.Database.MigrateOnStart)
		assert.Equal(t, 5, cfg.HTTP.ApprovalRateLimit)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearInvsyncEnv(t)
		t.Setenv("INVSYNC_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("INVSYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("requires a profiling server when profiling is enabled", func(t *testing.T) {
		clearInvsyncEnv(t)
		t.Setenv("INVSYNC_TELEMETRY_PROFILING_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.profiling_server")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearInvsyncEnv(t)
		t.Setenv("INVSYNC_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})
}

func TestLoad_BrokerValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown driver", map[string]string{"INVSYNC_BROKER_DRIVER": "rabbit"}, "broker.driver must be one of"},
		{"pubsub without project", map[string]string{"INVSYNC_BROKER_DRIVER": "pubsub"}, "broker.pubsub.project_id is required"},
		{"kafka without brokers", map[string]string{"INVSYNC_BROKER_DRIVER": "kafka"}, "broker.kafka.brokers is required"},
		{"unknown idempotency store", map[string]string{"INVSYNC_CONSUMER_IDEMPOTENCY_STORE": "memcached"}, "consumer.idempotency_store"},
		{"unknown lock driver", map[string]string{"INVSYNC_INTAKE_LOCK_DRIVER": "etcd"}, "intake.lock_driver"},
		{"negative lock ttl", map[string]string{"INVSYNC_INTAKE_LOCK_TTL": "-1s"}, "intake.lock_ttl must be positive"},
		{"sampling ratio out of range", map[string]string{"INVSYNC_TELEMETRY_SAMPLING_RATIO": "1.5"}, "telemetry.sampling_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearInvsyncEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("pubsub with project", func(t *testing.T) {
		clearInvsyncEnv(t)
		t.Setenv("INVSYNC_BROKER_DRIVER", "pubsub")
		t.Setenv("INVSYNC_BROKER_PUBSUB_PROJECT_ID", "erp-prod")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "erp-prod", cfg.Broker.PubSub.ProjectID)
		assert.Equal(t, "invsync", cfg.Broker.PubSub.SubscriptionPrefix)
		assert.Equal(t, 100, cfg.Broker.PubSub.MaxOutstanding)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearInvsyncEnv(t)
		t.Setenv("INVSYNC_APP_ENV", "production")
		t.Setenv("INVSYNC_DATABASE_PASSWORD", "secure-password")
		t.Setenv("INVSYNC_DATABASE_SSLMODE", "require")
		t.Setenv("INVSYNC_BROKER_DRIVER", "kafka")
		t.Setenv("INVSYNC_BROKER_KAFKA_BROKERS", "kafka:9092")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		os.Unsetenv("INVSYNC_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INVSYNC_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("refuses the in-memory broker in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INVSYNC_BROKER_DRIVER", "memory")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker.driver cannot be 'memory' in production")
	})

	t.Run("refuses full SQL in traces in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("INVSYNC_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.local", Port: 6380}
	assert.Equal(t, "cache.local:6380", cfg.Addr())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}
