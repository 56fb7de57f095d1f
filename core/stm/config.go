package stm

import (
	"fmt"

	"github.com/sushant-115/gojostm/core/stm/translation"
)

const (
	// DefaultHashBits sizes each thread's translation table to 256K slots.
	// Loops with larger footprints raise it, up to translation.MaxBits.
	DefaultHashBits = 18
	DefaultThreads  = 4
)

// Config holds the engine configuration.
type Config struct {
	// Threads is the number of worker threads, each owning one transaction.
	Threads int `yaml:"threads"`
	// HashBits is the width N of the translation table key; the table has
	// 1<<N slots.
	HashBits uint `yaml:"hash_bits"`
	// ReadCapacity bounds the read log. Zero means the table size.
	ReadCapacity int `yaml:"read_capacity"`
	// WriteCapacity bounds the write log. Zero means half the table size.
	WriteCapacity int `yaml:"write_capacity"`
	// Prediction enables the induction variable fast path.
	Prediction bool `yaml:"prediction"`
	// RollbackLogRate caps rollback warnings per second. Zero disables them.
	RollbackLogRate float64 `yaml:"rollback_log_rate"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Threads:         DefaultThreads,
		HashBits:        DefaultHashBits,
		Prediction:      true,
		RollbackLogRate: 10,
	}
}

// TableSize returns the number of translation table slots.
func (c Config) TableSize() int { return 1 << c.HashBits }

// ReadLimit returns the effective read log capacity.
func (c Config) ReadLimit() int {
	if c.ReadCapacity > 0 {
		return c.ReadCapacity
	}
	return c.TableSize()
}

// WriteLimit returns the effective write log capacity.
func (c Config) WriteLimit() int {
	if c.WriteCapacity > 0 {
		return c.WriteCapacity
	}
	return c.TableSize() / 2
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("%w: threads must be positive, got %d", ErrInvalidConfig, c.Threads)
	}
	if c.HashBits == 0 || c.HashBits > translation.MaxBits {
		return fmt.Errorf("%w: hash_bits must be in [1, %d], got %d", ErrInvalidConfig, translation.MaxBits, c.HashBits)
	}
	if c.ReadCapacity < 0 || c.WriteCapacity < 0 {
		return fmt.Errorf("%w: log capacities must not be negative", ErrInvalidConfig)
	}
	if c.WriteLimit() == 0 {
		return fmt.Errorf("%w: write log capacity resolves to 0", ErrInvalidConfig)
	}
	if c.RollbackLogRate < 0 {
		return fmt.Errorf("%w: rollback_log_rate must not be negative", ErrInvalidConfig)
	}
	return nil
}
