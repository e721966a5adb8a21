//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"idhub/internal/platform/config"
	"idhub/pkg/testutil/containers"
)

func TestNewAgainstContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)

	client, err := New(context.Background(), config.RedisConfig{URL: rc.URL, PoolSize: 2})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	require.NoError(t, client.Health(context.Background()))
}
