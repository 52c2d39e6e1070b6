package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 5*time.Second, cfg.Calculator.Timeout)
	assert.Equal(t, 1, cfg.Calculator.Workers)
	assert.False(t, cfg.Calculator.StrictVariables)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, "memory", cfg.Catalog.CacheBackend)
	assert.Equal(t, 100, cfg.Catalog.DefaultLimit)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CALC_TIMEOUT", "750ms")
	t.Setenv("CALC_WORKERS", "4")
	t.Setenv("CALC_STRICT_VARIABLES", "true")
	t.Setenv("CATALOG_CACHE_TTL", "90")
	t.Setenv("CATALOG_CACHE_BACKEND", "redis")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, 750*time.Millisecond, cfg.Calculator.Timeout)
	assert.Equal(t, 4, cfg.Calculator.Workers)
	assert.True(t, cfg.Calculator.StrictVariables)
	assert.Equal(t, 90*time.Second, cfg.Catalog.CacheTTL)
	assert.Equal(t, "redis", cfg.Catalog.CacheBackend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CALC_WORKERS", "many")
	t.Setenv("CALC_TIMEOUT", "soon")
	t.Setenv("CALC_STRICT_VARIABLES", "maybe")

	cfg := Load()

	assert.Equal(t, 1, cfg.Calculator.Workers)
	assert.Equal(t, 5*time.Second, cfg.Calculator.Timeout)
	assert.False(t, cfg.Calculator.StrictVariables)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "p@ss", Name: "doorcalc"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/doorcalc?sslmode=disable", c.DSN())
}
