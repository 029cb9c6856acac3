package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Resolver struct {
		// размер чанка для батчевых выборок по списку заказов
		ChunkSize int `mapstructure:"chunk_size"`
	} `mapstructure:"resolver"`

	Coalescer struct {
		ThrottleWindowMs int `mapstructure:"throttle_window_ms"`
		CacheValidityMs  int `mapstructure:"cache_validity_ms"`
		RetryBaseMs      int `mapstructure:"retry_base_ms"`
		RetryMax         int `mapstructure:"retry_max"`
	} `mapstructure:"coalescer"`

	Source struct {
		TimeoutMs int `mapstructure:"timeout_ms"`
	} `mapstructure:"source"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	// Позже можно будет переопределять через ENV (APP_*), если надо
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("resolver.chunk_size", 200)
	v.SetDefault("coalescer.throttle_window_ms", 2000)
	v.SetDefault("coalescer.cache_validity_ms", 5000)
	v.SetDefault("coalescer.retry_base_ms", 500)
	v.SetDefault("coalescer.retry_max", 5)
	v.SetDefault("source.timeout_ms", 3000)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) ThrottleWindow() time.Duration {
	return time.Duration(c.Coalescer.ThrottleWindowMs) * time.Millisecond
}

func (c Config) CacheValidity() time.Duration {
	return time.Duration(c.Coalescer.CacheValidityMs) * time.Millisecond
}

func (c Config) RetryBase() time.Duration {
	return time.Duration(c.Coalescer.RetryBaseMs) * time.Millisecond
}

func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutMs) * time.Millisecond
}
