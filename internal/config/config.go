package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"block-timestamp-logger/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig              `mapstructure:"app"`
	Logging  logging.Config         `mapstructure:"logging"`
	Chains   map[string]ChainConfig `mapstructure:"chains"`
	Poller   PollerConfig           `mapstructure:"poller"`
	Snapshot SnapshotConfig         `mapstructure:"snapshot"`
	Run      RunConfig              `mapstructure:"run"`
	Output   OutputConfig           `mapstructure:"output"`
	Database DatabaseConfig         `mapstructure:"database"`
	Metrics  MetricsConfig          `mapstructure:"metrics"`
	Report   ReportConfig           `mapstructure:"report"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ChainConfig identifies one monitored chain. Immutable after load.
type ChainConfig struct {
	RPCURL  string `mapstructure:"rpc_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// PollerConfig governs per-chain polling cadence.
type PollerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// SnapshotConfig governs how often aggregates are flushed to sinks.
type SnapshotConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// RunConfig bounds process lifetime. Duration zero means run indefinitely.
type RunConfig struct {
	Duration time.Duration `mapstructure:"duration"`
}

// OutputConfig sets the CSV output location.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig encapsulates optional PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig controls the prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// ReportConfig sets chart rendering behaviour.
type ReportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLOCKLAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "blocklag")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("poller.interval", "500ms")
	v.SetDefault("poller.fetch_timeout", "10s")

	v.SetDefault("snapshot.interval", "60s")

	v.SetDefault("run.duration", "60m")

	v.SetDefault("output.dir", "./logs")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("report.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be greater than zero")
	}
	if c.Poller.FetchTimeout <= 0 {
		return fmt.Errorf("poller.fetch_timeout must be greater than zero")
	}
	if c.Snapshot.Interval <= 0 {
		return fmt.Errorf("snapshot.interval must be greater than zero")
	}
	if c.Run.Duration < 0 {
		return fmt.Errorf("run.duration cannot be negative")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Report.MaxDataPoints <= 0 {
		return fmt.Errorf("report.max_data_points must be greater than zero")
	}
	for name, chain := range c.Chains {
		if chain.Enabled && chain.RPCURL == "" {
			return fmt.Errorf("chains.%s.rpc_url must be set when enabled", name)
		}
	}
	return nil
}

// EnabledChains returns the names of chains that are enabled and configured.
func (c *Config) EnabledChains() []string {
	names := make([]string, 0, len(c.Chains))
	for name, chain := range c.Chains {
		if chain.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Report.MaxDataPoints
}
