package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKeyWithPrefix(t *testing.T) {
	assert.Equal(t, "conv", GetKeyWithPrefix("", "conv"))
	assert.Equal(t, "cnlink:conv", GetKeyWithPrefix("cnlink", "conv"))
}

func TestOptionsDefaults(t *testing.T) {
	cfg := &Config{Password: "pw", DB: 2}
	opts := cfg.Options()
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestInitAgainstServer(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}
	require.NoError(t, Init(&Config{Host: host, Port: 6379}))
	defer Close()
	assert.True(t, IsHealthy(context.Background()))
	assert.NotNil(t, GetClient())
}
