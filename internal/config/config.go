// Package config loads the command line configuration from a YAML file and
// COMFYFLOW_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aretw0/comfyflow/pkg/host"
	"github.com/aretw0/comfyflow/pkg/transport"
)

const (
	EnvPrefix   = "COMFYFLOW"
	DefaultName = "comfyflow"

	DefaultMonitorAddr    = "127.0.0.1:8189"
	DefaultRequestTimeout = 30 * time.Second
)

// Store kinds.
const (
	StoreNone     = ""
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// StoreConfig selects where prompt records are kept.
type StoreConfig struct {
	Kind string `mapstructure:"kind"`
	// Dir is used by the file store.
	Dir string `mapstructure:"dir"`
	// URL is a redis:// or postgres:// connection string.
	URL    string        `mapstructure:"url"`
	Prefix string        `mapstructure:"prefix"`
	Table  string        `mapstructure:"table"`
	TTL    time.Duration `mapstructure:"ttl"`

	// Redact lists regular expressions masked in stored errors and paths.
	Redact []string `mapstructure:"redact"`
	// EncryptionKey is a base64 AES-256 key. When set, errors and artifact
	// paths are stored encrypted. FallbackKeys are tried on read.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

type MonitorConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config holds the configuration of the command line tool.
type Config struct {
	Host    host.Config   `mapstructure:"host"`
	Store   StoreConfig   `mapstructure:"store"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Debug   bool          `mapstructure:"debug"`
}

// Load reads path, or comfyflow.yaml from the working directory and
// ~/.config/comfyflow when path is empty. A missing default file is not an
// error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/comfyflow")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key, so environment variables are honoured
// even when the file does not mention them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("host.id", "")
	v.SetDefault("host.address", host.DefaultAddress)
	v.SetDefault("host.https", false)
	v.SetDefault("host.client_id", "")
	v.SetDefault("host.output_dir", host.DefaultOutputDir)
	v.SetDefault("host.cache_schema", true)
	v.SetDefault("host.id_mode", "numeric")
	v.SetDefault("host.max_retrievals", 4)
	v.SetDefault("host.max_server_logs", host.DefaultMaxServerLogs)
	v.SetDefault("host.reconnect_delay", transport.DefaultReconnectDelay)
	v.SetDefault("host.request_timeout", DefaultRequestTimeout)
	v.SetDefault("host.layout.hsep", 50)
	v.SetDefault("host.layout.vsep", 50)
	v.SetDefault("host.layout.force_left", false)
	v.SetDefault("host.save_format.format", "")
	v.SetDefault("host.save_format.quality", 0)
	v.SetDefault("host.save_format.prefix", "")

	v.SetDefault("store.kind", StoreNone)
	v.SetDefault("store.dir", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.prefix", "")
	v.SetDefault("store.table", "")
	v.SetDefault("store.ttl", 0)
	v.SetDefault("store.redact", []string{})
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.fallback_keys", []string{})

	v.SetDefault("monitor.addr", DefaultMonitorAddr)
	v.SetDefault("debug", false)
}

// Validate reports every configuration error at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Host.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Kind {
	case StoreNone, StoreMemory, StoreFile:
	case StoreRedis, StorePostgres:
		if c.Store.URL == "" {
			errs = append(errs, fmt.Errorf("store %s requires a url", c.Store.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	for _, p := range c.Store.Redact {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("store.redact: %w", err))
		}
	}
	if c.Store.EncryptionKey != "" {
		if _, err := c.Store.Keys(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys decodes the encryption key followed by the fallback keys.
func (s StoreConfig) Keys() ([][]byte, error) {
	var keys [][]byte
	for i, k := range append([]string{s.EncryptionKey}, s.FallbackKeys...) {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("store key #%d must be 32 bytes of base64", i)
		}
		keys = append(keys, b)
	}
	return keys, nil
}
