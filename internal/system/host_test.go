package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0m", formatUptime(30))
	assert.Equal(t, "5m", formatUptime(5*60))
	assert.Equal(t, "2h 3m", formatUptime(2*3600+3*60))
	assert.Equal(t, "1d 0h 1m", formatUptime(24*3600+60))
}

func TestReader_Summary(t *testing.T) {
	r := NewReader(time.Minute)

	first, err := r.Summary(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, first.Hostname)
	assert.Greater(t, first.Cores, 0)
	assert.Greater(t, first.MemTotal, uint64(0))

	second, err := r.Summary(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second, "served from cache within the ttl")
}
