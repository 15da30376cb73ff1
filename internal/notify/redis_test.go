package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a connected client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "failed to get redis endpoint")

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() {
		client.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})
	return client
}

func TestRedis_DispatchAndClick(t *testing.T) {
	client := setupRedis(t)
	cfg := DefaultRedisConfig()
	r := NewRedis(client, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shell := client.Subscribe(ctx, cfg.NotifyChannel, cfg.NavigateChannel)
	defer shell.Close()
	_, err := shell.Receive(ctx)
	require.NoError(t, err)
	msgs := shell.Channel()

	listenErr := make(chan error, 1)
	listenCtx, stopListen := context.WithCancel(ctx)
	go func() { listenErr <- r.ListenClicks(listenCtx) }()

	n := New(KindTrade, "Trade completed | Savings", "Sold 100 XLM for 25 USD at 0.25 USD/XLM", AccountRoute("mainnet:GA"))
	require.NoError(t, r.Dispatch(ctx, n))

	msg := <-msgs
	assert.Equal(t, cfg.NotifyChannel, msg.Channel)
	var got Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Body, got.Body)

	// The click listener subscribes asynchronously; keep clicking until it
	// answers.
	click, _ := json.Marshal(Click{ID: n.ID})
	var nav Navigation
	require.Eventually(t, func() bool {
		require.NoError(t, client.Publish(ctx, cfg.ClickChannel, click).Err())
		select {
		case m := <-msgs:
			require.Equal(t, cfg.NavigateChannel, m.Channel)
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &nav))
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, "/account/mainnet:GA", nav.Route)

	stopListen()
	assert.ErrorIs(t, <-listenErr, context.Canceled)
}
