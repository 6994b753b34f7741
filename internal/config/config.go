package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DSN           string
	HTTPPort      string
	JWTSecret     string
	RedisAddr     string
	MigrationsDir string
	FilterWord    string
	CacheRefresh  time.Duration
	KafkaBrokers  []string
	KafkaGroupID  string
	KafkaTopic    string
}

func LoadConfig() *Config {
	// Local overrides; missing .env is fine in production.
	_ = godotenv.Load()

	brokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	refresh, err := time.ParseDuration(getEnv("APP_CACHE_REFRESH", "30s"))
	if err != nil {
		refresh = 30 * time.Second
	}
	return &Config{
		DSN:           getEnv("APP_DSN", ""),
		HTTPPort:      getEnv("APP_PORT", "9000"),
		JWTSecret:     getEnv("APP_JWT_SECRET", "dev-secret"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		MigrationsDir: getEnv("APP_MIGRATIONS", "migrations"),
		FilterWord:    getEnv("APP_FILTER", ""),
		CacheRefresh:  refresh,
		KafkaBrokers:  strings.Split(brokersStr, ","),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "order-audit-group"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "order-events"),
	}
}

func (c *Config) Addr() string {
	return ":" + c.HTTPPort
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
