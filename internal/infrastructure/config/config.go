// Package config loads application configuration from file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// RedisConfig identifies the Redis instance backing the cache.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// PollerConfig controls the poller pool. Workers of zero means one
// worker per host CPU.
type PollerConfig struct {
	Workers int `mapstructure:"workers"`
}

// SyncConfig controls the master-server synchroniser.
type SyncConfig struct {
	Master         string `mapstructure:"master"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// WebsocketConfig controls the websocket gateway listener.
type WebsocketConfig struct {
	BindHost string `mapstructure:"bind_host"`
	BindPort int    `mapstructure:"bind_port"`
}

// GetAddr returns the listen address in host:port form.
func (c WebsocketConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.BindPort)
}

// TelemetryConfig controls the optional metrics listener. An empty
// bind address disables it.
type TelemetryConfig struct {
	Bind string `mapstructure:"bind"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configuration from ./configs/config.yaml (optional) and
// SERVERSTF_* environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")

	viper.SetEnvPrefix("SERVERSTF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional; env vars and defaults suffice.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults() {
	viper.SetDefault("redis.url", "redis://localhost:6379/0")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	viper.SetDefault("poller.workers", 0)

	viper.SetDefault("sync.master", "hl2master.steampowered.com:27011")
	viper.SetDefault("sync.timeout_seconds", 10)

	viper.SetDefault("websocket.bind_host", "0.0.0.0")
	viper.SetDefault("websocket.bind_port", 9001)

	viper.SetDefault("telemetry.bind", "")
}
