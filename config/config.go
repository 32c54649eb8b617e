// Package config loads daemon configuration from defaults, an optional yaml
// file, and ATLAS_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	PoolCapacity int    `mapstructure:"pool_capacity"`
	RingCapacity uint64 `mapstructure:"ring_capacity"`
	DrainBatch   int    `mapstructure:"drain_batch"`

	MaxOrderQuantity    uint64 `mapstructure:"max_order_quantity"`
	SelfTradePrevention bool   `mapstructure:"self_trade_prevention"`

	JournalDir string `mapstructure:"journal_dir"`

	KafkaBrokers  []string      `mapstructure:"kafka_brokers"`
	FeedTopic     string        `mapstructure:"feed_topic"`
	FeedGroupID   string        `mapstructure:"feed_group_id"`
	TradeTopic    string        `mapstructure:"trade_topic"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	MetricsAddr string `mapstructure:"metrics_addr"`

	// Simulate drives the book from the built-in feed simulator instead of
	// Kafka. Useful without a broker.
	Simulate bool `mapstructure:"simulate"`
}

// Load reads the optional config file at path ("" means defaults + env only).
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("pool_capacity", 100000)
	v.SetDefault("ring_capacity", 1<<16)
	v.SetDefault("drain_batch", 256)
	v.SetDefault("max_order_quantity", 1_000_000)
	v.SetDefault("self_trade_prevention", true)
	v.SetDefault("journal_dir", "./journal")
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("feed_topic", "atlas.feed.l2")
	v.SetDefault("feed_group_id", "atlas-engine")
	v.SetDefault("trade_topic", "atlas.trades")
	v.SetDefault("flush_interval", 250*time.Millisecond)
	v.SetDefault("metrics_addr", ":9100")
	v.SetDefault("simulate", false)

	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.RingCapacity == 0 || cfg.RingCapacity&(cfg.RingCapacity-1) != 0 {
		return Config{}, fmt.Errorf("config: ring_capacity must be a power of two, got %d", cfg.RingCapacity)
	}
	if cfg.PoolCapacity <= 0 {
		return Config{}, fmt.Errorf("config: pool_capacity must be positive, got %d", cfg.PoolCapacity)
	}
	return cfg, nil
}
