package config

import "time"

// Server defaults
const (
	DefaultHTTPPort = "8080"
	DefaultGinMode  = "release"
	DefaultLogLevel = "info"
)

// Database defaults
const (
	DefaultDBHost            = "localhost"
	DefaultDBPort            = 5432
	DefaultDBUser            = "factory_user"
	DefaultDBPassword        = "factory_password"
	DefaultDBName            = "factory_db"
	DefaultDBSSLMode         = "disable"
	DefaultDBMaxOpenConns    = 25
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 5 * time.Minute
)

// JWT defaults
const (
	DefaultJWTSecret     = "change-me-in-production"
	DefaultJWTExpiration = 24 * time.Hour
)

// Ledger and Container port defaults
const (
	DefaultLedgerHost       = "localhost"
	DefaultLedgerPort       = "9101"
	DefaultLedgerTimeout    = 5 * time.Second
	DefaultContainerHost    = "localhost"
	DefaultContainerPort    = "9102"
	DefaultContainerTimeout = 10 * time.Second
)

// Ledger scalar settings cache
const (
	DefaultSettingsCacheTTL = 30 * time.Second
)

// Kafka defaults
const (
	DefaultKafkaBrokers           = "localhost:9092"
	DefaultKafkaTopic             = "factory-events"
	DefaultKafkaNotifyThreshold   = 1000.0
)

// Object storage defaults (Code-Image Registry, C6)
const (
	DefaultS3Bucket   = "factory-code-images"
	DefaultS3Region   = "auto"
	DefaultS3Endpoint = ""
)

// Deployment / reconciliation scheduler defaults
const (
	DefaultTickInterval       = 300 * time.Second
	DefaultMaxPerTick         = 50
	DefaultDeploymentFeeUnits = int64(100_000_000)
	DefaultMinDeposit         = int64(1_000_000)
	DefaultMaxDeposit         = int64(100_000_000_000)
	DefaultPendingTTL         = time.Hour
	DefaultDeploymentTTL      = 24 * time.Hour
	DefaultRetryBaseInterval  = 60 * time.Second
	DefaultRetryCapInterval   = time.Hour
	DefaultStuckTTL           = 15 * time.Minute
	DefaultMaxInstallAttempts = 3

	DefaultRecordRetention       = 2160 * time.Hour // 90 days
	DefaultMaxCompletedRecords   = 10000
)
