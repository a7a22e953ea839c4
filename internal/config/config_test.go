package config

import (
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configFixture = `
application:
  name: credential-manager
  environment: test
http:
  address: "localhost:8080"
  shutdownTimeout: 2s
database:
  name: credential_manager
  port: "5432"
  host:
    source: embedded
    value: localhost
  user:
    source: embedded
    value: postgres
  password:
    source: embedded
    value: secret
valkey:
  prefix: credential-manager
  host:
    source: embedded
    value: localhost:6379
identity:
  baseURL: https://identity.example.com/auth/v1
  apiKey:
    source: embedded
    value: anon-key
  timeout: 3s
flows:
  ttl: 15m
  completedRetention: 2m
  codeLength: 6
  minPasswordLength: 8
housekeeper:
  triggerInterval: 30s
`

func TestConfigYAMLMapping(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(configFixture), &cfg))

	assert.Equal(t, "localhost:8080", cfg.HTTP.Address)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ShutdownTimeout)

	assert.Equal(t, "credential_manager", cfg.Database.Name)
	assert.Equal(t, "embedded", string(cfg.Database.Host.Source))
	assert.Equal(t, "localhost", cfg.Database.Host.Value)

	assert.Equal(t, "credential-manager", cfg.ValKey.Prefix)

	assert.Equal(t, "https://identity.example.com/auth/v1", cfg.Identity.BaseURL)
	assert.Equal(t, "anon-key", cfg.Identity.APIKey.Value)
	assert.Equal(t, 3*time.Second, cfg.Identity.Timeout)

	assert.Equal(t, 15*time.Minute, cfg.Flows.TTL)
	assert.Equal(t, 2*time.Minute, cfg.Flows.CompletedRetention)
	assert.Equal(t, 8, cfg.Flows.MinPasswordLength)

	assert.Equal(t, 30*time.Second, cfg.Housekeeper.TriggerInterval)
}
