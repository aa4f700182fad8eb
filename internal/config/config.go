package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
	RetentionDays  int    `mapstructure:"retention_days"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// IntegrationsConfig holds per-vendor integration configuration
type IntegrationsConfig struct {
	OpenMeteo OpenMeteoConfig  `mapstructure:"openmeteo"`
	Shelly    ShellyConfig     `mapstructure:"shelly"`
	NUT       NUTConfig        `mapstructure:"nut"`
	SysMon    SysMonConfig     `mapstructure:"sysmon"`
	Setup     SetupRetryConfig `mapstructure:"setup"`
}

// SetupRetryConfig controls how setup is retried when an integration's
// initial refresh fails.
type SetupRetryConfig struct {
	InitialDelay string `mapstructure:"initial_delay"`
	MaxDelay     string `mapstructure:"max_delay"`
}

type OpenMeteoConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	BaseURL      string  `mapstructure:"base_url"`
	Latitude     float64 `mapstructure:"latitude"`
	Longitude    float64 `mapstructure:"longitude"`
	PollInterval string  `mapstructure:"poll_interval"`
}

type ShellyConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Hosts        []string `mapstructure:"hosts"`
	Discovery    bool     `mapstructure:"discovery"`
	PollInterval string   `mapstructure:"poll_interval"`
}

type NUTConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	UPSNames     []string `mapstructure:"ups_names"`
	PollInterval string   `mapstructure:"poll_interval"`
}

type SysMonConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	PollInterval string `mapstructure:"poll_interval"`
}

// Load reads configuration from config file and environment
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/hearth")

	viper.SetEnvPrefix("HEARTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults + env carry the day
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3001)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.path", "./data/hearth.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.retention_days", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	viper.SetDefault("integrations.setup.initial_delay", "5s")
	viper.SetDefault("integrations.setup.max_delay", "5m")

	viper.SetDefault("integrations.openmeteo.base_url", "https://api.open-meteo.com")
	viper.SetDefault("integrations.openmeteo.poll_interval", "15m")
	viper.SetDefault("integrations.shelly.poll_interval", "30s")
	viper.SetDefault("integrations.nut.port", 3493)
	viper.SetDefault("integrations.nut.poll_interval", "30s")
	viper.SetDefault("integrations.sysmon.poll_interval", "1m")
}

// ParseInterval converts a config interval string to a duration, falling back
// to def when empty or invalid.
func ParseInterval(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
