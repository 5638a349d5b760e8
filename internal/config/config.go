package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gasflow/internal/logging"
)

// PlaceholderAPIKey is the sentinel shipped in sample configs; it never reaches the oracle.
const PlaceholderAPIKey = "YourApiKeyToken"

// Config materialises application configuration.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Logging   logging.Config `mapstructure:"logging"`
	Oracle    OracleConfig   `mapstructure:"oracle"`
	Poller    PollerConfig   `mapstructure:"poller"`
	Store     StoreConfig    `mapstructure:"store"`
	Database  DatabaseConfig `mapstructure:"database"`
	Ethereum  EthereumConfig `mapstructure:"ethereum"`
	Alerting  AlertingConfig `mapstructure:"alerting"`
	Server    ServerConfig   `mapstructure:"server"`
	Export    ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// OracleConfig captures the Etherscan-compatible gas oracle.
type OracleConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	Seed               uint64        `mapstructure:"seed"`
}

// PollerConfig governs the polling controller.
type PollerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	HistorySize     int           `mapstructure:"history_size"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	TrackEthPrice   bool          `mapstructure:"track_eth_price"`
	// AlignToInterval fires timer ticks on wall-clock multiples of RefreshInterval.
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// StoreConfig selects the durable key-value backend for preferences and the polling cache.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig 描述 Redis 后端连接参数。
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig encapsulates the optional PostgreSQL sample archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EthereumConfig covers optional on-chain fee reads.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert delivery.
type AlertingConfig struct {
	Cooldown  time.Duration  `mapstructure:"cooldown"`
	KeepLast  int            `mapstructure:"keep_last"`
	LogAlerts bool           `mapstructure:"log_alerts"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig configures the JSON API served by `gasflow serve`.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GASFLOW")
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
	v.SetDefault("app.name", "gasflow")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("oracle.base_url", "https://api.etherscan.io/api")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.min_request_interval", "5s")
	v.SetDefault("oracle.request_timeout", "10s")
	v.SetDefault("oracle.user_agent", "")
	v.SetDefault("oracle.seed", 0)

	v.SetDefault("poller.refresh_interval", "15s")
	v.SetDefault("poller.history_size", 30)
	v.SetDefault("poller.max_retries", 3)
	v.SetDefault("poller.retry_delay", "5s")
	v.SetDefault("poller.track_eth_price", true)
	v.SetDefault("poller.align_to_interval", false)
	v.SetDefault("poller.startup_delay", "0s")

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", ".gasflow/state.yaml")
	v.SetDefault("store.redis.addr", "127.0.0.1:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "gasflow:")
	v.SetDefault("store.redis.ttl", "0s")

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("alerting.cooldown", "5m")
	v.SetDefault("alerting.keep_last", 5)
	v.SetDefault("alerting.log_alerts", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("export.max_data_points", 1000)
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
	if c.Oracle.MinRequestInterval < 0 {
		return fmt.Errorf("oracle.min_request_interval cannot be negative")
	}
	if c.Poller.RefreshInterval <= 0 {
		return fmt.Errorf("poller.refresh_interval must be greater than zero")
	}
	if c.Poller.HistorySize <= 0 {
		return fmt.Errorf("poller.history_size must be greater than zero")
	}
	if c.Poller.MaxRetries <= 0 {
		return fmt.Errorf("poller.max_retries must be greater than zero")
	}
	if c.Poller.RetryDelay < 0 {
		return fmt.Errorf("poller.retry_delay cannot be negative")
	}
	if c.Poller.StartupDelay < 0 {
		return fmt.Errorf("poller.startup_delay cannot be negative")
	}
	switch strings.ToLower(c.Store.Backend) {
	case "file", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path 必须配置 (backend=%s)", c.Store.Backend)
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr 必须配置")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend %q 不受支持 (file|sqlite|redis|memory)", c.Store.Backend)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// HasAPIKey reports whether the oracle key is usable (present and not the placeholder).
func (c *Config) HasAPIKey() bool {
	key := strings.TrimSpace(c.Oracle.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
