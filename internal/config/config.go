package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the forms server configuration, read from app.yaml.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	FormsDir    string            `mapstructure:"forms_dir"`
	FormsWatch  bool              `mapstructure:"forms_watch"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	LogLevel    string            `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type IdempotencyConfig struct {
	Driver          string        `mapstructure:"driver"` // "memory" or "sql"
	TTL             time.Duration `mapstructure:"ttl"`
	MaxEntries      int           `mapstructure:"max_entries"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return filepath.Join(d.Path, d.Name+".db")
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// ClientConfig is the offline client configuration, read from formsync.yaml.
type ClientConfig struct {
	ServerURL      string         `mapstructure:"server_url"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	Database       DatabaseConfig `mapstructure:"database"`
	Sync           SyncConfig     `mapstructure:"sync"`
	AutosaveDelay  time.Duration  `mapstructure:"autosave_delay"`
	Agent          AgentConfig    `mapstructure:"agent"`
	Locale         string         `mapstructure:"locale"`
	LogLevel       string         `mapstructure:"log_level"`
}

type SyncConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
	Debounce    time.Duration `mapstructure:"debounce"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RetryMax    time.Duration `mapstructure:"retry_max"`
	Concurrency int           `mapstructure:"concurrency"`
}

type AgentConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the server configuration. An empty path searches for app.yaml in
// the working directory and two levels up.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "forms")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("forms_dir", "./forms")
	v.SetDefault("forms_watch", false)
	v.SetDefault("idempotency.driver", "memory")
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.max_entries", 10000)
	v.SetDefault("idempotency.cleanup_interval", 10*time.Minute)
	v.SetDefault("log_level", "info")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads the client configuration. Unlike the server, a missing
// formsync.yaml is not an error when path is empty: defaults apply.
func LoadClient(path string) (*ClientConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("formsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/formsync")
	}

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data")
	v.SetDefault("database.name", "formsync")
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("sync.retry_base", 2*time.Second)
	v.SetDefault("sync.retry_max", 2*time.Minute)
	v.SetDefault("sync.concurrency", 1)
	v.SetDefault("autosave_delay", time.Second)
	v.SetDefault("agent.addr", "127.0.0.1:7420")
	v.SetDefault("locale", "en")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("formsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Sync.MaxAttempts < 1 {
		return nil, fmt.Errorf("sync.max_attempts must be at least 1, got %d", cfg.Sync.MaxAttempts)
	}
	return &cfg, nil
}
