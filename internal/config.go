package internal

import (
	"fmt"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type StoreDriver string

const (
	DriverMemory   StoreDriver = "memory"
	DriverBadger   StoreDriver = "badger"
	DriverPostgres StoreDriver = "postgres"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL,default=INFO"`
	StoreDriver string `env:"STORE_DRIVER,default=badger"`

	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`

	HTTPHost  string `env:"HTTP_HOST,default=0.0.0.0"`
	HTTPPort  int    `env:"HTTP_PORT,default=8080"`
	GRPCPort  int    `env:"GRPC_PORT,default=50051"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`

	RetryDelay             time.Duration `env:"RETRY_DELAY,default=10s"`
	MaxClaimAttempts       int           `env:"MAX_CLAIM_ATTEMPTS,default=5"`
	MaxContentLength       int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	NotificationBufferSize int           `env:"NOTIFICATION_BUFFER_SIZE,default=1024"`
	NotificationTimeout    time.Duration `env:"NOTIFICATION_TIMEOUT,default=2s"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HealthInterval         time.Duration `env:"HEALTH_INTERVAL,default=15s"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// LoadConfig reads an optional .env file (variables already set in the environment win)
// then decodes and checks the configuration.
func LoadConfig(dotenvPath string) (Config, error) {
	if _, err := os.Stat(dotenvPath); err == nil {
		if err := godotenv.Load(dotenvPath); err != nil {
			return Config{}, fmt.Errorf("unable to load %s: %w", dotenvPath, err)
		}
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, config.Validate()
}

func (c Config) Driver() StoreDriver {
	return StoreDriver(c.StoreDriver)
}

func (c Config) Validate() error {
	switch c.Driver() {
	case DriverMemory, DriverBadger:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (expected memory, badger or postgres)", c.StoreDriver)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("RETRY_DELAY must be positive, got %s", c.RetryDelay)
	}
	if c.MaxClaimAttempts < 1 {
		return fmt.Errorf("MAX_CLAIM_ATTEMPTS must be at least 1, got %d", c.MaxClaimAttempts)
	}
	if c.MaxContentLength < 1 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be at least 1, got %d", c.MaxContentLength)
	}
	if c.NotificationBufferSize < 1 {
		return fmt.Errorf("NOTIFICATION_BUFFER_SIZE must be at least 1, got %d", c.NotificationBufferSize)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("HEALTH_INTERVAL must be positive, got %s", c.HealthInterval)
	}
	return nil
}
