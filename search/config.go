package search

import "fmt"

const (
	// DefaultMaxDistance is the cosine distance beyond which vector matches are dropped.
	DefaultMaxDistance = 1.0

	// DefaultLimit is the result count used when a request does not set one.
	DefaultLimit = 10

	// DefaultMaxLimit caps the result count of any request.
	DefaultMaxLimit = 100

	// SampleSize is the number of random entries offered when nothing matched.
	SampleSize = 12
)

// Config holds query engine tuning.
type Config struct {
	// MaxDistance excludes vector matches farther than this cosine distance.
	// Zero or negative disables the threshold.
	MaxDistance float64

	// DefaultLimit applies when a request's limit is zero or negative.
	DefaultLimit int

	// MaxLimit caps every request's limit.
	MaxLimit int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxDistance:  DefaultMaxDistance,
		DefaultLimit: DefaultLimit,
		MaxLimit:     DefaultMaxLimit,
	}
}

// Validate checks that the limits are usable.
func (c Config) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("%w: default limit must be greater than 0", ErrInvalidConfig)
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("%w: max limit %d is below default limit %d", ErrInvalidConfig, c.MaxLimit, c.DefaultLimit)
	}
	return nil
}

// Limit resolves a requested limit against the configured bounds.
func (c Config) Limit(requested int) int {
	if requested <= 0 {
		return c.DefaultLimit
	}
	return min(requested, c.MaxLimit)
}
