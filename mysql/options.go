package mysql

import (
	"github.com/google/uuid"

	"github.com/velmie/admsrelay"
)

const defaultTable = "logs"

// Config defines MySQL queue behavior.
type Config struct {
	Table     string
	Clock     admsrelay.Clock
	Generator func() (uuid.UUID, error)
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Clock == nil {
		c.Clock = admsrelay.SystemClock{}
	}
	if c.Generator == nil {
		c.Generator = uuid.NewV7
	}

	return c
}

// Option configures the MySQL queue.
type Option func(*Config)

// WithTable sets the queue table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithClock sets the time source used for creation times.
func WithClock(clock admsrelay.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithGenerator sets the attempt ID generator.
func WithGenerator(gen func() (uuid.UUID, error)) Option {
	return func(c *Config) {
		c.Generator = gen
	}
}
