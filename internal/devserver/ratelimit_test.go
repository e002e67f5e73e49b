package devserver

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pageza/pantrycam/internal/gateway"
	"github.com/pageza/pantrycam/internal/types"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed, skipping container-based test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRateLimiterIsAllowed(t *testing.T) {
	rdb := startRedis(t)
	rl := NewRateLimiter(rdb, RateLimitConfig{Window: time.Hour, Limit: 2, KeyPrefix: "test"})
	ctx := context.Background()

	allowed, remaining, reset, err := rl.IsAllowed(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
	assert.True(t, reset.After(time.Now()))

	allowed, remaining, _, err = rl.IsAllowed(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _, _, err = rl.IsAllowed(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, _, err = rl.IsAllowed(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitedDetect(t *testing.T) {
	rdb := startRedis(t)
	ts := newTestServer(t, WithRateLimiter(NewRateLimiter(rdb, RateLimitConfig{
		Window:    time.Hour,
		Limit:     1,
		KeyPrefix: "rate_limit:detect",
	})))
	client := newUser(t, ts, "limited@example.com")
	img := types.Image{Filename: "egg.png", Data: pngHeader}

	_, err := client.RecognizeIngredients(context.Background(), img)
	require.NoError(t, err)
	_, err = client.RecognizeIngredients(context.Background(), img)
	assert.ErrorIs(t, err, gateway.ErrValidation)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	ts := newTestServer(t, WithRateLimiter(NewDetectRateLimiter(rdb)))
	client := newUser(t, ts, "open@example.com")

	names, err := client.RecognizeIngredients(context.Background(), types.Image{Filename: "egg.png", Data: pngHeader})
	require.NoError(t, err)
	assert.Equal(t, []string{"egg"}, names)
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "://bad")
	assert.Error(t, err)

	rdb := startRedis(t)
	client, err := NewRedisClient(context.Background(), "redis://"+rdb.Options().Addr+"/0")
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}
