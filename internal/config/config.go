package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APP_ENV   string `env:"APP_ENV"`
	LOG_LEVEL string `env:"LOG_LEVEL"`
	HTTP_PORT string `env:"HTTP_PORT"`
	DB_STRING string `env:"DB_STRING"`

	REQUEST_TIMEOUT     time.Duration `env:"REQUEST_TIMEOUT"`
	ORDER_STATUS_POLICY string        `env:"ORDER_STATUS_POLICY"`

	KAFKA_BROKERS  string `env:"KAFKA_BROKERS"`
	KAFKA_TOPIC    string `env:"KAFKA_TOPIC"`
	KAFKA_GROUP_ID string `env:"KAFKA_GROUP_ID"`

	MINIO_ENDPOINT   string `env:"MINIO_ENDPOINT"`
	MINIO_ACCESS_KEY string `env:"MINIO_ACCESS_KEY"`
	MINIO_SECRET_KEY string `env:"MINIO_SECRET_KEY"`
	MINIO_BUCKET     string `env:"MINIO_BUCKET"`
	MINIO_USE_SSL    bool   `env:"MINIO_USE_SSL"`
}

// LoadConfig reads the environment, after merging an optional .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APP_ENV:             getenv("APP_ENV", "development"),
		LOG_LEVEL:           os.Getenv("LOG_LEVEL"),
		HTTP_PORT:           getenv("HTTP_PORT", "8080"),
		DB_STRING:           os.Getenv("DB_STRING"),
		ORDER_STATUS_POLICY: getenv("ORDER_STATUS_POLICY", "permissive"),
		KAFKA_BROKERS:       strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		KAFKA_TOPIC:         getenv("KAFKA_TOPIC", "orders.events"),
		KAFKA_GROUP_ID:      getenv("KAFKA_GROUP_ID", "reptile-orders-cache"),
		MINIO_ENDPOINT:      os.Getenv("MINIO_ENDPOINT"),
		MINIO_ACCESS_KEY:    os.Getenv("MINIO_ACCESS_KEY"),
		MINIO_SECRET_KEY:    os.Getenv("MINIO_SECRET_KEY"),
		MINIO_BUCKET:        getenv("MINIO_BUCKET", "payment-proofs"),
	}

	if cfg.DB_STRING == "" {
		return nil, errors.New("DB_STRING is required")
	}

	timeout, err := time.ParseDuration(getenv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	cfg.REQUEST_TIMEOUT = timeout

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if cfg.MINIO_USE_SSL, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("MINIO_USE_SSL: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) KafkaEnabled() bool {
	return c.KAFKA_BROKERS != ""
}

func (c *Config) MinioEnabled() bool {
	return c.MINIO_ENDPOINT != ""
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
