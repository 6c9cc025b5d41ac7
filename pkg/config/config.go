package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	StorageBucket   string
	Environment     string

	QuoteValidity       time.Duration
	AdvanceDueAfter     time.Duration
	ExpirySweepInterval time.Duration

	MidtransServerKey   string
	MidtransEnvironment string

	RabbitMQURL     string
	RedisAddr       string
	RedisPassword   string
	BookingCacheTTL time.Duration

	PlaceLookupURL string

	AllowedOrigins  []string
	MaxUploadSize   int64
	LocalStorageDir string
	PublicBaseURL   string
	CredentialsJSON string
	CredentialsPath string

	MessageRateLimit float64 // messages per second per user
	MessageBurst     int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		StorageBucket:   getEnv("STORAGE_BUCKET", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),

		QuoteValidity:       getEnvAsDuration("QUOTE_VALIDITY", 72*time.Hour),
		AdvanceDueAfter:     getEnvAsDuration("ADVANCE_DUE_AFTER", 72*time.Hour),
		ExpirySweepInterval: getEnvAsDuration("QUOTE_EXPIRY_SWEEP", time.Minute),

		MidtransServerKey:   getEnv("MIDTRANS_SERVER_KEY", ""),
		MidtransEnvironment: getEnv("MIDTRANS_ENVIRONMENT", "sandbox"),

		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		BookingCacheTTL: getEnvAsDuration("BOOKING_CACHE_TTL", 30*time.Second),

		PlaceLookupURL: getEnv("PLACE_LOOKUP_URL", "https://nominatim.openstreetmap.org"),

		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
		MaxUploadSize:   getEnvAsInt64("MAX_UPLOAD_SIZE", 10<<20),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "./uploads"),
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		CredentialsJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		CredentialsPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),

		MessageRateLimit: getEnvAsFloat("MESSAGE_RATE_LIMIT", 1),
		MessageBurst:     int(getEnvAsInt64("MESSAGE_BURST", 10)),
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
