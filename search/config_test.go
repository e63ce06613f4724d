package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{DefaultLimit: 0, MaxLimit: 10}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{DefaultLimit: 20, MaxLimit: 10}.Validate(), ErrInvalidConfig)
	assert.NoError(t, Config{MaxDistance: -1, DefaultLimit: 1, MaxLimit: 1}.Validate())
}

func TestConfig_Limit(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, DefaultLimit, c.Limit(0))
	assert.Equal(t, DefaultLimit, c.Limit(-5))
	assert.Equal(t, 25, c.Limit(25))
	assert.Equal(t, DefaultMaxLimit, c.Limit(1000))
}
