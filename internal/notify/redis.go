package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig names the pub/sub channels shared with the desktop shell.
type RedisConfig struct {
	NotifyChannel   string // daemon -> shell: notifications to show
	ClickChannel    string // shell -> daemon: clicked notification ids
	NavigateChannel string // daemon -> shell: views to open
	MaxRoutes       int
}

// DefaultRedisConfig returns the default channel names.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		NotifyChannel:   "walletd:notifications",
		ClickChannel:    "walletd:clicks",
		NavigateChannel: "walletd:navigate",
		MaxRoutes:       DefaultMaxRoutes,
	}
}

// Click is a clicked notification reported by the shell.
type Click struct {
	ID string `json:"id"`
}

// Navigation asks the shell to open a view.
type Navigation struct {
	Route string `json:"route"`
}

// Redis bridges notifications to a desktop shell over Redis pub/sub.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	routes *Routes
	logger *log.Logger
}

// NewRedis creates a Redis dispatcher.
func NewRedis(client *redis.Client, cfg RedisConfig, logger *log.Logger) *Redis {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return &Redis{
		client: client,
		cfg:    cfg,
		routes: NewRoutes(cfg.MaxRoutes),
		logger: logger,
	}
}

// Dispatch publishes n and remembers its click target.
func (r *Redis) Dispatch(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	r.routes.Remember(n.ID, n.Route)
	if err := r.client.Publish(ctx, r.cfg.NotifyChannel, data).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH %s: %w", r.cfg.NotifyChannel, err)
	}
	return nil
}

// Navigate publishes a navigation request.
func (r *Redis) Navigate(ctx context.Context, route string) error {
	data, err := json.Marshal(Navigation{Route: route})
	if err != nil {
		return fmt.Errorf("marshal navigation: %w", err)
	}
	if err := r.client.Publish(ctx, r.cfg.NavigateChannel, data).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH %s: %w", r.cfg.NavigateChannel, err)
	}
	return nil
}

// ListenClicks consumes click reports and navigates to the clicked
// notification's route until ctx is done.
func (r *Redis) ListenClicks(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.cfg.ClickChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis SUBSCRIBE %s: %w", r.cfg.ClickChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleClick(ctx, msg.Payload)
		}
	}
}

func (r *Redis) handleClick(ctx context.Context, payload string) {
	var click Click
	if err := json.Unmarshal([]byte(payload), &click); err != nil {
		r.logger.Printf("decode click: %v", err)
		return
	}
	route, ok := r.routes.Resolve(click.ID)
	if !ok {
		r.logger.Printf("click on unknown notification %s", click.ID)
		return
	}
	if err := r.Navigate(ctx, route); err != nil {
		r.logger.Printf("navigate %s: %v", route, err)
	}
}

var (
	_ Dispatcher = (*Redis)(nil)
	_ Navigator  = (*Redis)(nil)
)
