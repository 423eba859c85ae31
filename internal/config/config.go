package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting of the service. Values come from the
// environment, with an optional .env file for local development.
type Config struct {
	Port        string
	Environment string

	MongoURI        string
	MongoDatabase   string
	MongoRetryCount int
	MongoRetryWait  time.Duration

	RedisAddr string
	RedisDB   int

	JWTSecret string

	AMQPURL      string
	AMQPExchange string

	OTLPEndpoint string
	DebugRoutes  bool
}

// Load reads configuration from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:        getEnv("PORT", "8083"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DB", "realtime_chat"),
		MongoRetryCount: getEnvInt("MONGO_RETRY_COUNT", 3),
		MongoRetryWait:  getEnvDuration("MONGO_RETRY_WAIT", 2*time.Second),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat_events"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
		DebugRoutes:  getEnvBool("DEBUG_ROUTES", false),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
