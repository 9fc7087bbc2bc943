package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	assert.Error(t, err)

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestOptionalClientsWithoutURL(t *testing.T) {
	client, err := OptionalRedisClient(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, client)

	pool, err := OptionalPostgresPool(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, pool)
}

func TestNewPostgresPoolRejectsBadURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "")
	assert.Error(t, err)

	_, err = NewPostgresPool(context.Background(), "postgres://%zz")
	assert.ErrorContains(t, err, "parse postgres config")
}
