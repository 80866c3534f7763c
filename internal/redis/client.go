package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/converse/chat-server-go/internal/config"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

// Healthy reports whether redis is currently reachable. The session store
// calls this before every operation to pick a backend, so the probe is
// bounded by a short timeout.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, config.RedisHealthTimeout)
	defer cancel()
	return c.Ping(ctx).Err() == nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func SessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

func UserSessionsKey(userID string) string {
	return fmt.Sprintf("sessions:user:%s", userID)
}

func ChannelKey(channel string) string {
	return fmt.Sprintf("chat:channel:%s", channel)
}
