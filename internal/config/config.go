package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	Port           string
	GinMode        string
	RequestTimeout time.Duration

	StoreBackend string
	Mongo        struct {
		URI          string
		Database     string
		Transactions bool
	}

	JWTSecret string
	TokenTTL  time.Duration

	CORSAllowOrigins []string

	// RabbitMQURL is optional; events are dropped when it is empty.
	RabbitMQURL string
}

func Load() (*Config, error) {
	// Load .env file if it exists (useful for local dev)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		GinMode:          getenv("GIN_MODE", "release"),
		RequestTimeout:   parseDuration(getenv("REQUEST_TIMEOUT", "5s"), 5*time.Second),
		StoreBackend:     strings.ToLower(getenv("STORE_BACKEND", BackendMongo)),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		TokenTTL:         parseDuration(getenv("TOKEN_TTL", "24h"), 24*time.Hour),
		CORSAllowOrigins: splitCSV(getenv("CORS_ALLOW_ORIGINS", "*")),
		RabbitMQURL:      strings.TrimSpace(os.Getenv("RABBITMQ_URL")),
	}

	cfg.Mongo.URI = getenv("MONGODB_URI", os.Getenv("MONGO_URL"))
	cfg.Mongo.Database = getenv("MONGODB_DATABASE", "storefront")
	cfg.Mongo.Transactions = parseBool(getenv("MONGODB_TRANSACTIONS", "true"), true)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	switch cfg.StoreBackend {
	case BackendMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("MONGODB_URI or MONGO_URL must be set")
		}
	case BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
