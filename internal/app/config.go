package app

import (
	"os"
	"strings"
	"time"
)

// Config описывает настройки запуска приложения. Все поля читаются из
// окружения с префиксом STOREFRONT_, пустые значения отключают
// соответствующую подсистему (Postgres, Kafka, Redis).
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN включает постоянное хранилище; пустой DSN означает
	// in-memory режим для разработки и демо.
	PostgresDSN string
	// KafkaBrokers включает публикацию outbox-событий.
	KafkaBrokers []string
	// RedisAddr включает квотный отсекатель допуска.
	RedisAddr string

	PipelineInterval time.Duration
	StuckThreshold   time.Duration
	OutboxInterval   time.Duration
}

// DefaultConfig возвращает базовые адреса и интервалы.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         ":8080",
		MetricsAddr:      ":9090",
		PipelineInterval: 30 * time.Second,
		StuckThreshold:   2 * time.Hour,
		OutboxInterval:   5 * time.Second,
	}
}

// LoadConfig собирает конфигурацию из переменных окружения поверх значений
// по умолчанию.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("STOREFRONT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("STOREFRONT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = envString("STOREFRONT_PG_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = envString("STOREFRONT_REDIS_ADDR", cfg.RedisAddr)

	if brokers := envString("STOREFRONT_KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitBrokers(brokers)
	}

	cfg.PipelineInterval = envDuration("STOREFRONT_PIPELINE_INTERVAL", cfg.PipelineInterval)
	cfg.StuckThreshold = envDuration("STOREFRONT_STUCK_THRESHOLD", cfg.StuckThreshold)
	cfg.OutboxInterval = envDuration("STOREFRONT_OUTBOX_INTERVAL", cfg.OutboxInterval)

	return cfg
}

func envString(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
