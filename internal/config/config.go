// Package config loads proxy settings from defaults, a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the proxy.
type Config struct {
	Port       int    `yaml:"port"        mapstructure:"port"        env:"TTS_PROXY_PORT"`
	DataDir    string `yaml:"data_dir"    mapstructure:"data_dir"    env:"TTS_DATA_DIR"`
	BackendURL string `yaml:"backend_url" mapstructure:"backend_url" env:"TTS_BACKEND_URL"`

	// Seconds
	Timeout   int `yaml:"timeout"    mapstructure:"timeout"    env:"TTS_TIMEOUT"`
	KeepAlive int `yaml:"keep_alive" mapstructure:"keep_alive" env:"TTS_KEEPALIVE"`

	QueueSize        int  `yaml:"queue_size"        mapstructure:"queue_size"        env:"TTS_QUEUE_SIZE"`
	StatsFlushEvery  int  `yaml:"stats_flush_every" mapstructure:"stats_flush_every" env:"TTS_STATS_FLUSH_EVERY"`
	CompressionLevel int  `yaml:"compression_level" mapstructure:"compression_level" env:"TTS_COMPRESSION_LEVEL"`
	BackendRPM       int  `yaml:"backend_rpm"       mapstructure:"backend_rpm"       env:"TTS_BACKEND_RPM"`
	CoalesceMisses   bool `yaml:"coalesce_misses"   mapstructure:"coalesce_misses"   env:"TTS_COALESCE_MISSES"`
	WatchPositions   bool `yaml:"watch_positions"   mapstructure:"watch_positions"   env:"TTS_WATCH_POSITIONS"`

	// Empty disables the cross-instance relay
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr" env:"TTS_REDIS_ADDR"`

	DefaultVoice string `yaml:"default_voice" mapstructure:"default_voice" env:"TTS_DEFAULT_VOICE"`
	DefaultModel string `yaml:"default_model" mapstructure:"default_model" env:"TTS_DEFAULT_MODEL"`

	LogLevel  string `yaml:"log_level"  mapstructure:"log_level"  env:"TTS_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format" env:"TTS_LOG_FORMAT"`
	Debug     bool   `yaml:"debug"      mapstructure:"debug"      env:"TTS_DEBUG"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:             5051,
		DataDir:          "./data/tts-cache",
		BackendURL:       "http://localhost:5050",
		Timeout:          30,
		KeepAlive:        30,
		QueueSize:        100,
		StatsFlushEvery:  10,
		CompressionLevel: 0,
		BackendRPM:       0,
		DefaultVoice:     "alloy",
		DefaultModel:     "tts-1",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// SetDefaults registers Default() with v so config file keys merge over it.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("port", d.Port)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("backend_url", d.BackendURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("keep_alive", d.KeepAlive)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("stats_flush_every", d.StatsFlushEvery)
	v.SetDefault("compression_level", d.CompressionLevel)
	v.SetDefault("backend_rpm", d.BackendRPM)
	v.SetDefault("coalesce_misses", d.CoalesceMisses)
	v.SetDefault("watch_positions", d.WatchPositions)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("default_voice", d.DefaultVoice)
	v.SetDefault("default_model", d.DefaultModel)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("debug", d.Debug)
}

// Load merges the values in v (defaults plus any config file already read)
// with the environment. Environment variables win over the file.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("unable to decode config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}

	return cfg, nil
}

// Normalize expands ~ in paths and applies Debug to LogLevel.
func (c *Config) Normalize() error {
	dir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return fmt.Errorf("unable to expand data dir: %w", err)
	}
	c.DataDir = filepath.Clean(dir)
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.Debug {
		c.LogLevel = "debug"
	}
	return nil
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_url must be an absolute URL, got %q", c.BackendURL))
	}
	if c.Timeout < 1 {
		errs = append(errs, fmt.Errorf("timeout must be at least 1 second, got %d", c.Timeout))
	}
	if c.KeepAlive < 1 {
		errs = append(errs, fmt.Errorf("keep_alive must be at least 1 second, got %d", c.KeepAlive))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize))
	}
	if c.StatsFlushEvery < 1 {
		errs = append(errs, fmt.Errorf("stats_flush_every must be at least 1, got %d", c.StatsFlushEvery))
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		errs = append(errs, fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel))
	}
	if c.BackendRPM < 0 {
		errs = append(errs, fmt.Errorf("backend_rpm must not be negative, got %d", c.BackendRPM))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "logfmt", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text, logfmt or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// KeepAliveDuration returns KeepAlive as a time.Duration.
func (c Config) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// CacheDir is where audio blobs live.
func (c Config) CacheDir() string {
	return filepath.Join(c.DataDir, "tts-cache")
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// YAML renders the configuration in config file form.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("unable to encode config: %w", err)
	}
	return out, nil
}
