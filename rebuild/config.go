package rebuild

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds configuration for rebuild jobs.
type Config struct {
	// BatchSize is the number of source entities fetched per page.
	// A checkpoint is written after every page.
	BatchSize int

	// ReportInterval is how often to report progress (number of entities)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for a failing page fetch or upsert
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// PoolSize is the number of jobs that may run at once.
	PoolSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		PoolSize:       max(runtime.NumCPU()/2, 1),
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than 0, got %d", c.BatchSize)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be greater than 0, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be greater than 0, got %d", c.PoolSize)
	}
	return nil
}
