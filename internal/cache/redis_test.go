package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisClientUnreachable(t *testing.T) {
	// Port 1 is never a redis server; the ping must fail fast.
	rc, err := NewRedisClient(context.Background(), "127.0.0.1", "1", "")
	assert.Error(t, err)
	assert.Nil(t, rc)
}

func TestCloseNil(t *testing.T) {
	var rc *RedisClient
	assert.NoError(t, rc.Close())
}
