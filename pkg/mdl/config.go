package mdl

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config manages partitioner configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Search parameters
	v.SetDefault("partition.restarts", 4)
	v.SetDefault("partition.max_sweeps", 100)
	v.SetDefault("partition.max_blocks", 0)
	v.SetDefault("partition.random_seed", 42)
	v.SetDefault("partition.patience", 3)

	// Output parameters
	v.SetDefault("output.subgraphs", false)
	v.SetDefault("output.object_labels", false)

	// Logging parameters
	v.SetDefault("logging.level", "info")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

func (c *Config) Restarts() int      { return c.v.GetInt("partition.restarts") }
func (c *Config) MaxSweeps() int     { return c.v.GetInt("partition.max_sweeps") }
func (c *Config) MaxBlocks() int     { return c.v.GetInt("partition.max_blocks") }
func (c *Config) Patience() int      { return c.v.GetInt("partition.patience") }
func (c *Config) RandomSeed() uint64 { return c.v.GetUint64("partition.random_seed") }

func (c *Config) Subgraphs() bool    { return c.v.GetBool("output.subgraphs") }
func (c *Config) ObjectLabels() bool { return c.v.GetBool("output.object_labels") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Options materializes the configuration for one Partition call.
func (c *Config) Options() Options {
	return Options{
		Seed:         c.RandomSeed(),
		Restarts:     c.Restarts(),
		MaxSweeps:    c.MaxSweeps(),
		MaxBlocks:    c.MaxBlocks(),
		Patience:     c.Patience(),
		Subgraphs:    c.Subgraphs(),
		ObjectLabels: c.ObjectLabels(),
		Logger:       c.CreateLogger(),
	}
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "mdl").Logger()
}
