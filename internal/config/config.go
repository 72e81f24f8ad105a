// Package config provides a Viper-backed implementation of the plugin.Config interface.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"winsentry/pkg/plugin"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig wraps a Viper instance to implement plugin.Config.
type ViperConfig struct {
	v *viper.Viper
}

// New creates a Config backed by the given Viper instance.
// Returns the concrete type; callers assign to plugin.Config where needed.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// Load reads the agent configuration. If path is empty, it searches the
// working directory and /etc/winsentry for winsentry.yaml. Environment
// variables prefixed WINSENTRY_ override file values. A missing file is
// not an error; defaults apply.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("winsentry")
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("winsentry")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/winsentry")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "winsentry.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("ops.addr", "127.0.0.1:9180")
	v.SetDefault("modules.monitor.tick", "1s")
	v.SetDefault("modules.monitor.resource_tick", "5s")
	v.SetDefault("modules.script.workers", 4)
	v.SetDefault("modules.script.queue_size", 256)
	v.SetDefault("modules.script.default_timeout", "5m")
	v.SetDefault("modules.alert.recurring_tick", "1m")
}

func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any {
	return c.v.Get(key)
}

func (c *ViperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *ViperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *ViperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Viper returns the underlying Viper instance for direct access
// (e.g., by the composition root for top-level keys like database.path).
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
