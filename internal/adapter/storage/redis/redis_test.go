package redis

import (
	"context"
	"strconv"
	"testing"

	"yield-bnpl/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestRedisAddr(t *testing.T) {
	cfg := config.RedisConfig{
		Host: "redis.example.com",
		Port: 6380,
	}

	assert.Equal(t, "redis.example.com:6380", cfg.Addr())
}

func TestNewClient_AndHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewClient(context.Background(), config.RedisConfig{Host: mr.Host(), Port: port}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	h := NewHealthCheck(client)
	assert.Equal(t, "redis", h.Name())
	assert.NoError(t, h.Ping(context.Background()))

	mr.Close()
	assert.Error(t, h.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = NewClient(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port}, zerolog.Nop())
	assert.ErrorContains(t, err, "pinging redis")
}
