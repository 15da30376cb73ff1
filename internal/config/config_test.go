package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/stellar"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WALLETD_USE_MEMORY", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.True(t, cfg.UseMemory)
	assert.Equal(t, "https://horizon.stellar.org", cfg.Horizon.URL(domain.NetworkMainnet))
	assert.Equal(t, "https://horizon-testnet.stellar.org", cfg.Horizon.URL(domain.NetworkTestnet))
	assert.Equal(t, 10.0, cfg.Horizon.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Horizon.Timeout)
	assert.Equal(t, "walletd:notifications", cfg.Redis.NotifyChannel)
	assert.Equal(t, "walletd:clicks", cfg.Redis.ClickChannel)
	assert.Equal(t, "walletd:navigate", cfg.Redis.NavigateChannel)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.DebounceDelay)
	assert.Equal(t, 50, cfg.Pipeline.ActivityLimit)
	assert.Equal(t, 30*time.Second, cfg.Worker.ProbeInterval)
	assert.Equal(t, 64, cfg.Worker.QueueSize)
	assert.Empty(t, cfg.Accounts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WALLETD_USE_MEMORY", "true")
	t.Setenv("WALLETD_HTTP_ADDR", "127.0.0.1:8080")
	t.Setenv("WALLETD_HORIZON_TESTNET_URL", "http://localhost:8000")
	t.Setenv("WALLETD_HORIZON_RATE_LIMIT", "2.5")
	t.Setenv("WALLETD_PIPELINE_DEBOUNCE_DELAY", "200ms")
	t.Setenv("WALLETD_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("WALLETD_MULTISIG_URL", "wss://multisig.example/ws")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8000", cfg.Horizon.TestnetURL)
	assert.Equal(t, 2.5, cfg.Horizon.RateLimit)
	assert.Equal(t, 200*time.Millisecond, cfg.Pipeline.DebounceDelay)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "wss://multisig.example/ws", cfg.Multisig.URL)
}

func TestLoad_MissingStorage(t *testing.T) {
	t.Setenv("WALLETD_USE_MEMORY", "false")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WALLETD_POSTGRES_DSN")
	assert.Contains(t, err.Error(), "WALLETD_CLICKHOUSE_DSN")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walletd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
postgres_dsn: postgres://walletd@localhost/walletd
clickhouse_dsn: clickhouse://localhost:9000/walletd
worker:
  probe_interval: 1m
accounts:
  - public_key: GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ
    name: Savings
  - public_key: GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3SW5UN3ARVMO6QSRDWP5YLEX
    name: Test
    testnet: true
`)
	t.Setenv("WALLETD_WORKER_QUEUE_SIZE", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.UseMemory)
	assert.Equal(t, "postgres://walletd@localhost/walletd", cfg.PostgresDSN)
	assert.Equal(t, time.Minute, cfg.Worker.ProbeInterval)
	assert.Equal(t, 8, cfg.Worker.QueueSize, "environment wins over file")
	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "Savings", cfg.Accounts[0].Name)
	assert.False(t, cfg.Accounts[0].Testnet)
	assert.True(t, cfg.Accounts[1].Testnet)
}

func TestLoad_InvalidAccount(t *testing.T) {
	path := writeConfig(t, `
use_memory: true
accounts:
  - public_key: GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGA
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, stellar.ErrInvalidStrKey)
	assert.Contains(t, err.Error(), "accounts[0]")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"no mainnet url", func(c *Config) { c.Horizon.MainnetURL = "" }, true},
		{"zero rate", func(c *Config) { c.Horizon.RateLimit = 0 }, true},
		{"brokers without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.Topic = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				UseMemory: true,
				Horizon: HorizonConfig{
					MainnetURL: "https://horizon.stellar.org",
					TestnetURL: "https://horizon-testnet.stellar.org",
					RateLimit:  1,
					Burst:      1,
				},
				Kafka: KafkaConfig{Topic: "walletd.errors"},
			}
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# local overrides\nWALLETD_HTTP_ADDR=:7070\nWALLETD_USE_MEMORY=true\n"), 0o600))
	t.Setenv("WALLETD_USE_MEMORY", "false")
	os.Unsetenv("WALLETD_HTTP_ADDR")
	t.Cleanup(func() { os.Unsetenv("WALLETD_HTTP_ADDR") })

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, ":7070", os.Getenv("WALLETD_HTTP_ADDR"))
	assert.Equal(t, "false", os.Getenv("WALLETD_USE_MEMORY"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
