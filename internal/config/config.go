package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/taskmgr/internal/logger"
	"github.com/loykin/taskmgr/internal/tracing"
)

// Config represents the TOML configuration file. Every key can also be set
// through the environment with the TASKMGR_ prefix, e.g. TASKMGR_CAPACITY_MAX.
type Config struct {
	Capacity   CapacityConfig   `toml:"capacity" mapstructure:"capacity"`
	Store      StoreConfig      `toml:"store" mapstructure:"store"`
	Server     ServerConfig     `toml:"server" mapstructure:"server"`
	Management ManagementConfig `toml:"management" mapstructure:"management"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`
	Log        logger.Config    `toml:"log" mapstructure:"log"`
	Tracing    tracing.Config   `toml:"tracing" mapstructure:"tracing"`
}

type CapacityConfig struct {
	Max int `toml:"max" mapstructure:"max"`
}

// StoreConfig selects the record store, see store/factory for DSN formats.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// ManagementConfig is the operator listener serving capacity changes,
// health and metrics. An empty Listen disables it.
type ManagementConfig struct {
	Listen  string `toml:"listen" mapstructure:"listen"`
	Metrics bool   `toml:"metrics" mapstructure:"metrics"`
}

type HistoryConfig struct {
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capacity.max", 25)
	v.SetDefault("store.dsn", "sqlite://taskmgr.db")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.tls_min_version", "")
	v.SetDefault("server.tls_max_version", "")
	v.SetDefault("management.listen", "127.0.0.1:9090")
	v.SetDefault("management.metrics", true)
	v.SetDefault("history.dsns", []string{})
	v.SetDefault("log.slog.level", "info")
	v.SetDefault("log.slog.format", "text")
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.slog.source", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.output", "")
}

// Load reads path (TOML) on top of the defaults and applies environment
// overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TASKMGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Capacity.Max < 0 {
		errs = append(errs, fmt.Errorf("capacity.max must not be negative (%d)", c.Capacity.Max))
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if t := c.Server.TLS; t != nil && t.Enabled {
		hasFiles := t.CertFile != "" && t.KeyFile != ""
		if !hasFiles && t.Dir == "" {
			errs = append(errs, errors.New("server.tls enabled but neither cert_file/key_file nor dir is set"))
		}
	}
	return errors.Join(errs...)
}
