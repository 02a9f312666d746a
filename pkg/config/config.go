// Package config holds the server and analysis defaults. Values come from
// built-in defaults, an optional YAML file and HINA_* environment
// variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: server.address is read
// from HINA_SERVER_ADDRESS.
const EnvPrefix = "HINA"

// Config wraps viper for the service settings.
type Config struct {
	v *viper.Viper
}

// NewConfig returns the defaults with environment overrides applied.
func NewConfig() *Config {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("analysis.alpha", 0.05)
	v.SetDefault("analysis.fix_deg", "none")
	v.SetDefault("analysis.correction", "none")
	v.SetDefault("analysis.method", "mdl")
	v.SetDefault("analysis.random_seed", 42)
	v.SetDefault("analysis.layout", "bipartite")
	v.SetDefault("analysis.timeout", 50*time.Second)

	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// Load reads path when it is non-empty and returns the merged settings.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	if err := c.LoadFromFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromFile merges a YAML (or any viper-supported) file.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// Set overrides a key.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

func (c *Config) Address() string                { return c.v.GetString("server.address") }
func (c *Config) ReadTimeout() time.Duration     { return c.v.GetDuration("server.read_timeout") }
func (c *Config) WriteTimeout() time.Duration    { return c.v.GetDuration("server.write_timeout") }
func (c *Config) ShutdownTimeout() time.Duration { return c.v.GetDuration("server.shutdown_timeout") }
func (c *Config) MaxUploadBytes() int64          { return c.v.GetInt64("server.max_upload_bytes") }
func (c *Config) Alpha() float64                 { return c.v.GetFloat64("analysis.alpha") }
func (c *Config) FixDeg() string                 { return c.v.GetString("analysis.fix_deg") }
func (c *Config) Correction() string             { return c.v.GetString("analysis.correction") }
func (c *Config) Method() string                 { return c.v.GetString("analysis.method") }
func (c *Config) RandomSeed() uint64             { return c.v.GetUint64("analysis.random_seed") }
func (c *Config) Layout() string                 { return c.v.GetString("analysis.layout") }
func (c *Config) AnalysisTimeout() time.Duration { return c.v.GetDuration("analysis.timeout") }
func (c *Config) LogLevel() string               { return c.v.GetString("logging.level") }

// CORSOrigins accepts a list or a comma separated string, the form
// environment variables arrive in.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range c.v.GetStringSlice("server.cors_origins") {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	return origins
}
