// Package config loads the daemon configuration from an optional YAML file,
// WALLETD_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/stellar"
)

// EnvPrefix prefixes every environment variable: horizon.mainnet_url is
// read from WALLETD_HORIZON_MAINNET_URL.
const EnvPrefix = "WALLETD"

// HorizonConfig configures the Horizon clients.
type HorizonConfig struct {
	MainnetURL string        `mapstructure:"mainnet_url"`
	TestnetURL string        `mapstructure:"testnet_url"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second per network
	Burst      int           `mapstructure:"burst"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// URL returns the base URL of network.
func (h HorizonConfig) URL(network domain.Network) string {
	if network == domain.NetworkTestnet {
		return h.TestnetURL
	}
	return h.MainnetURL
}

// MultisigConfig configures the co-signing service connection. An empty URL
// disables signature request notifications.
type MultisigConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig configures the desktop shell bridge. An empty address logs
// notifications instead.
type RedisConfig struct {
	Addr            string `mapstructure:"addr"`
	NotifyChannel   string `mapstructure:"notify_channel"`
	ClickChannel    string `mapstructure:"click_channel"`
	NavigateChannel string `mapstructure:"navigate_channel"`
}

// KafkaConfig configures error report fan-out. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PipelineConfig tunes the notification pipeline.
type PipelineConfig struct {
	DebounceDelay time.Duration `mapstructure:"debounce_delay"`
	ActivityLimit int           `mapstructure:"activity_limit"`
}

// WorkerConfig tunes the background worker.
type WorkerConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	QueueSize     int           `mapstructure:"queue_size"`
}

// AccountConfig is a statically configured account, tracked at startup.
type AccountConfig struct {
	PublicKey string `mapstructure:"public_key"`
	Name      string `mapstructure:"name"`
	Testnet   bool   `mapstructure:"testnet"`
}

// Config holds the daemon configuration.
type Config struct {
	HTTPAddr      string `mapstructure:"http_addr"`
	UseMemory     bool   `mapstructure:"use_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`

	Horizon  HorizonConfig   `mapstructure:"horizon"`
	Multisig MultisigConfig  `mapstructure:"multisig"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	Pipeline PipelineConfig  `mapstructure:"pipeline"`
	Worker   WorkerConfig    `mapstructure:"worker"`
	Accounts []AccountConfig `mapstructure:"accounts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":9090")
	v.SetDefault("use_memory", false)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("clickhouse_dsn", "")

	v.SetDefault("horizon.mainnet_url", "https://horizon.stellar.org")
	v.SetDefault("horizon.testnet_url", "https://horizon-testnet.stellar.org")
	v.SetDefault("horizon.rate_limit", 10.0)
	v.SetDefault("horizon.burst", 5)
	v.SetDefault("horizon.timeout", 30*time.Second)

	v.SetDefault("multisig.url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.notify_channel", "walletd:notifications")
	v.SetDefault("redis.click_channel", "walletd:clicks")
	v.SetDefault("redis.navigate_channel", "walletd:navigate")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "walletd.errors")

	v.SetDefault("pipeline.debounce_delay", 50*time.Millisecond)
	v.SetDefault("pipeline.activity_limit", 50)

	v.SetDefault("worker.probe_interval", 30*time.Second)
	v.SetDefault("worker.queue_size", 64)
}

// Load reads configuration. When path is empty, walletd.yaml is looked up in
// the working directory and $HOME/.walletd and may be absent. Environment
// variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("walletd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.walletd")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and static accounts.
func (c *Config) Validate() error {
	var missing []string
	if c.Horizon.MainnetURL == "" {
		missing = append(missing, EnvPrefix+"_HORIZON_MAINNET_URL")
	}
	if c.Horizon.TestnetURL == "" {
		missing = append(missing, EnvPrefix+"_HORIZON_TESTNET_URL")
	}
	if !c.UseMemory {
		if c.PostgresDSN == "" {
			missing = append(missing, EnvPrefix+"_POSTGRES_DSN")
		}
		if c.ClickHouseDSN == "" {
			missing = append(missing, EnvPrefix+"_CLICKHOUSE_DSN")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s (set %s_USE_MEMORY=true for in-memory storage)",
			strings.Join(missing, ", "), EnvPrefix)
	}

	if c.Horizon.RateLimit <= 0 || c.Horizon.Burst <= 0 {
		return fmt.Errorf("horizon rate limit must be positive: %v/%d", c.Horizon.RateLimit, c.Horizon.Burst)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}

	for i, a := range c.Accounts {
		if err := stellar.ValidateAccountID(a.PublicKey); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	return nil
}

// splitList flattens comma separated entries, as given through the
// environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
