package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	ro := Options{Addr: " localhost:6379 ", DB: 2}.redisOptions()

	assert.Equal(t, "localhost:6379", ro.Addr)
	assert.Equal(t, 2, ro.DB)
	assert.Equal(t, defaultPoolSize, ro.PoolSize)
	assert.Equal(t, defaultDialTimeout, ro.DialTimeout)
	assert.Equal(t, defaultReadTimeout, ro.ReadTimeout)
	assert.Equal(t, defaultWriteTimeout, ro.WriteTimeout)

	ro = Options{Addr: "r:6379", PoolSize: 10, ReadTimeout: time.Second}.redisOptions()
	assert.Equal(t, 10, ro.PoolSize)
	assert.Equal(t, time.Second, ro.ReadTimeout)
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), Options{Addr: "  "})
	require.Error(t, err)
}
