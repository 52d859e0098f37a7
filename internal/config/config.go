package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config contains the Factory's full runtime configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Ledger    PortConfig
	Container PortConfig
	Settings  SettingsConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	Deploy    DeployConfig
	Logger    LoggerConfig
}

// ServerConfig contains the HTTP server configuration.
type ServerConfig struct {
	HTTPPort string
	GinMode  string
}

// DatabaseConfig contains the PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig contains the bearer-token configuration.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// PortConfig configures an outbound HTTP port client (Ledger or Container).
type PortConfig struct {
	Host    string
	Port    string
	Timeout time.Duration
}

// SettingsConfig configures the deployment_fee settings cache (C5).
type SettingsConfig struct {
	CacheTTL time.Duration
}

// KafkaConfig contains the event-notifier configuration.
type KafkaConfig struct {
	Brokers         []string
	Topic           string
	NotifyThreshold float64
}

// StorageConfig contains the S3-compatible object storage configuration
// backing the Code-Image Registry (C6).
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// DeployConfig contains the deployment state machine and reconciliation
// scheduler's tunables.
type DeployConfig struct {
	TickInterval        time.Duration
	MaxPerTick          int
	DeploymentFeeUnits  int64
	MinDeposit          int64
	MaxDeposit          int64
	PendingTTL          time.Duration
	DeploymentTTL       time.Duration
	RetryBaseInterval   time.Duration
	RetryCapInterval    time.Duration
	StuckTTL            time.Duration
	MaxInstallAttempts  int
	RecordRetention     time.Duration
	MaxCompletedRecords int
}

// LoggerConfig contains the structured-logging configuration.
type LoggerConfig struct {
	Level string
}

// Load reads the environment (optionally seeded from a .env file at
// configPath) into a Config.
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		if err := godotenv.Load(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Server.HTTPPort = getEnv("HTTP_PORT", DefaultHTTPPort)
	cfg.Server.GinMode = getEnv("GIN_MODE", DefaultGinMode)

	cfg.Database.Host = getEnv("DB_HOST", DefaultDBHost)
	cfg.Database.Port = getEnvInt("DB_PORT", DefaultDBPort)
	cfg.Database.User = getEnv("DB_USER", DefaultDBUser)
	cfg.Database.Password = getEnv("DB_PASSWORD", DefaultDBPassword)
	cfg.Database.DBName = getEnv("DB_NAME", DefaultDBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", DefaultDBSSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", DefaultDBMaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", DefaultDBMaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime)

	cfg.JWT.Secret = getEnv("JWT_SECRET", DefaultJWTSecret)
	cfg.JWT.Expiration = getEnvDuration("JWT_EXPIRATION", DefaultJWTExpiration)

	cfg.Ledger.Host = getEnv("LEDGER_HOST", DefaultLedgerHost)
	cfg.Ledger.Port = getEnv("LEDGER_PORT", DefaultLedgerPort)
	cfg.Ledger.Timeout = getEnvDuration("LEDGER_TIMEOUT", DefaultLedgerTimeout)

	cfg.Container.Host = getEnv("CONTAINER_HOST", DefaultContainerHost)
	cfg.Container.Port = getEnv("CONTAINER_PORT", DefaultContainerPort)
	cfg.Container.Timeout = getEnvDuration("CONTAINER_TIMEOUT", DefaultContainerTimeout)

	cfg.Settings.CacheTTL = getEnvDuration("SETTINGS_CACHE_TTL", DefaultSettingsCacheTTL)

	brokers := getEnv("KAFKA_BROKERS", DefaultKafkaBrokers)
	cfg.Kafka.Brokers = []string{brokers}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", DefaultKafkaTopic)
	cfg.Kafka.NotifyThreshold = getEnvFloat("KAFKA_NOTIFY_THRESHOLD", DefaultKafkaNotifyThreshold)

	cfg.Storage.Bucket = getEnv("S3_BUCKET", DefaultS3Bucket)
	cfg.Storage.Region = getEnv("S3_REGION", DefaultS3Region)
	cfg.Storage.Endpoint = getEnv("S3_ENDPOINT", DefaultS3Endpoint)
	cfg.Storage.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", "")
	cfg.Storage.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", "")

	cfg.Deploy.TickInterval = getEnvDuration("TICK_INTERVAL", DefaultTickInterval)
	cfg.Deploy.MaxPerTick = getEnvInt("MAX_PER_TICK", DefaultMaxPerTick)
	cfg.Deploy.DeploymentFeeUnits = getEnvInt64("DEPLOYMENT_FEE_UNITS", DefaultDeploymentFeeUnits)
	cfg.Deploy.MinDeposit = getEnvInt64("MIN_DEPOSIT", DefaultMinDeposit)
	cfg.Deploy.MaxDeposit = getEnvInt64("MAX_DEPOSIT", DefaultMaxDeposit)
	cfg.Deploy.PendingTTL = getEnvDuration("PENDING_TTL", DefaultPendingTTL)
	cfg.Deploy.DeploymentTTL = getEnvDuration("DEPLOYMENT_TTL", DefaultDeploymentTTL)
	cfg.Deploy.RetryBaseInterval = getEnvDuration("RETRY_BASE_INTERVAL", DefaultRetryBaseInterval)
	cfg.Deploy.RetryCapInterval = getEnvDuration("RETRY_CAP_INTERVAL", DefaultRetryCapInterval)
	cfg.Deploy.StuckTTL = getEnvDuration("STUCK_TTL", DefaultStuckTTL)
	cfg.Deploy.MaxInstallAttempts = getEnvInt("MAX_INSTALL_ATTEMPTS", DefaultMaxInstallAttempts)
	cfg.Deploy.RecordRetention = getEnvDuration("RECORD_RETENTION", DefaultRecordRetention)
	cfg.Deploy.MaxCompletedRecords = getEnvInt("MAX_COMPLETED_RECORDS", DefaultMaxCompletedRecords)

	cfg.Logger.Level = getEnv("LOG_LEVEL", DefaultLogLevel)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the configuration for obviously unsafe or unusable values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.JWT.Secret == "" || c.JWT.Secret == DefaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}
	if c.Deploy.MinDeposit <= 0 || c.Deploy.MaxDeposit <= c.Deploy.MinDeposit {
		return fmt.Errorf("MIN_DEPOSIT/MAX_DEPOSIT are misconfigured")
	}
	if c.Deploy.MaxInstallAttempts <= 0 {
		return fmt.Errorf("MAX_INSTALL_ATTEMPTS must be > 0")
	}
	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}
	return nil
}
