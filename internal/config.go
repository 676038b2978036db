package internal

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration of the server.
type Config struct {
	Server struct {
		Port                int `mapstructure:"port"`
		QueryTimeoutMs      int `mapstructure:"query_timeout_ms"`
		ConnectionTimeoutMs int `mapstructure:"connection_timeout_ms"`
	} `mapstructure:"server"`

	Storage struct {
		DataRoot string `mapstructure:"data_root"`
	} `mapstructure:"storage"`

	Buffer struct {
		Capacity           int     `mapstructure:"capacity"`
		EvictionThreshold  float64 `mapstructure:"eviction_threshold"`
		TargetUtilization  float64 `mapstructure:"target_utilization"`
		EvictionIntervalMs int     `mapstructure:"eviction_interval_ms"`
	} `mapstructure:"buffer"`
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Server.QueryTimeoutMs) * time.Millisecond
}

func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Server.ConnectionTimeoutMs) * time.Millisecond
}

func (c *Config) EvictionInterval() time.Duration {
	return time.Duration(c.Buffer.EvictionIntervalMs) * time.Millisecond
}

// LoadConfig reads a YAML config file, falling back to defaults for every
// missing key. An empty path loads defaults only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.port", 5432)
	v.SetDefault("server.query_timeout_ms", 30000)
	v.SetDefault("server.connection_timeout_ms", 10000)
	v.SetDefault("storage.data_root", "./data")
	v.SetDefault("buffer.capacity", 128)
	v.SetDefault("buffer.eviction_threshold", 0.80)
	v.SetDefault("buffer.target_utilization", 0.60)
	v.SetDefault("buffer.eviction_interval_ms", 1000)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
