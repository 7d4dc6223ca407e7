package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "GIN_MODE", "REQUEST_TIMEOUT", "STORE_BACKEND", "MONGODB_URI", "MONGO_URL",
		"MONGODB_DATABASE", "MONGODB_TRANSACTIONS", "JWT_SECRET", "TOKEN_TTL",
		"CORS_ALLOW_ORIGINS", "RABBITMQ_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MONGO_URL", "mongodb://localhost:27017")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "storefront", cfg.Mongo.Database)
	assert.True(t, cfg.Mongo.Transactions)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
	assert.Empty(t, cfg.RabbitMQURL)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("MONGODB_URI", "mongodb://primary")
	t.Setenv("MONGO_URL", "mongodb://fallback")
	t.Setenv("MONGODB_TRANSACTIONS", "false")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("REQUEST_TIMEOUT", "bogus")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "mongodb://primary", cfg.Mongo.URI)
	assert.False(t, cfg.Mongo.Transactions)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
}

func TestLoadRequiresSecretAndURI(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = Load()
	assert.ErrorContains(t, err, "MONGODB_URI")

	t.Setenv("STORE_BACKEND", "cassandra")
	_, err = Load()
	assert.ErrorContains(t, err, "STORE_BACKEND")
}
