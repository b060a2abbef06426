package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv       string
	Port          string
	PublicURL     string
	JWTSecret     string
	JWTExpire     time.Duration
	CORSOrigins   []string
	AlertCooldown time.Duration
	Database      DatabaseConfig
	MQTT          MQTTConfig
	Redis         RedisConfig
	Log           LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	Username string
	Password string
	Database string
	LogSQL   bool
}

// MQTTConfig holds broker settings for sensor ingestion
type MQTTConfig struct {
	Enabled   bool
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
}

// RedisConfig holds settings for the realtime relay. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	jwtExpire, err := time.ParseDuration(getEnv("JWT_EXPIRE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRE: %w", err)
	}

	cooldown, err := time.ParseDuration(getEnv("ALERT_COOLDOWN", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_COOLDOWN: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	port := getEnv("PORT", "3000")

	return &Config{
		NodeEnv:       getEnv("NODE_ENV", "development"),
		Port:          port,
		PublicURL:     getEnv("PUBLIC_URL", "http://localhost:"+port),
		JWTSecret:     jwtSecret,
		JWTExpire:     jwtExpire,
		CORSOrigins:   splitList(getEnv("CORS_ORIGIN", "http://localhost:5173")),
		AlertCooldown: cooldown,
		Database: DatabaseConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "greenpulse"),
			LogSQL:   getEnv("DB_LOG_SQL", "false") == "true",
		},
		MQTT: MQTTConfig{
			Enabled:   getEnv("MQTT_ENABLED", "true") == "true",
			BrokerURL: getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			ClientID:  getEnv("MQTT_CLIENT_ID", "greenpulse-backend"),
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
			Topic:     getEnv("MQTT_TOPIC", "devices/+/sensor"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Channel:  getEnv("REDIS_CHANNEL", "greenpulse:realtime"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
