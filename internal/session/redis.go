package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/model"
	redisclient "github.com/converse/chat-server-go/internal/redis"
)

// redisSession is the wire form of a session record. The token is not stored
// in the value; it is the key.
type redisSession struct {
	UserID    string    `json:"userId"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RedisBackend stores sessions as JSON values with native per-key TTL and
// keeps a per-user set of tokens for enumeration and bulk revoke.
type RedisBackend struct {
	client *redisclient.Client
}

func NewRedisBackend(client *redisclient.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Put(ctx context.Context, sess *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(redisSession{
		UserID:    sess.UserID,
		IP:        sess.IP,
		UserAgent: sess.UserAgent,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, redisclient.SessionKey(sess.Token), data, ttl)
	pipe.SAdd(ctx, redisclient.UserSessionsKey(sess.UserID), sess.Token)
	// The index must outlive the longest session in it; refresh on every
	// create rather than tracking per-member lifetimes.
	pipe.Expire(ctx, redisclient.UserSessionsKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, token string) (*model.Session, error) {
	data, err := b.client.Get(ctx, redisclient.SessionKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var rec redisSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &model.Session{
		Token:     token,
		UserID:    rec.UserID,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (b *RedisBackend) Delete(ctx context.Context, token string) (bool, error) {
	sess, err := b.Get(ctx, token)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, redisclient.SessionKey(token))
	pipe.SRem(ctx, redisclient.UserSessionsKey(sess.UserID), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return true, nil
}

func (b *RedisBackend) DeleteAll(ctx context.Context, userID string) (int, error) {
	indexKey := redisclient.UserSessionsKey(userID)

	tokens, err := b.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("read session index: %w", err)
	}

	if len(tokens) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, redisclient.SessionKey(token))
	}

	pipe := b.client.TxPipeline()
	delCmd := pipe.Del(ctx, keys...)
	pipe.Del(ctx, indexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	return int(delCmd.Val()), nil
}

func (b *RedisBackend) ListByUser(ctx context.Context, userID string) ([]*model.Session, error) {
	indexKey := redisclient.UserSessionsKey(userID)

	tokens, err := b.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read session index: %w", err)
	}

	sessions := make([]*model.Session, 0, len(tokens))
	for _, token := range tokens {
		sess, err := b.Get(ctx, token)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			// The record expired under its own TTL; drop the dangling
			// index entry so the set converges.
			if err := b.client.SRem(ctx, indexKey, token).Err(); err != nil {
				log.Warn().Err(err).Str("userId", userID).Msg("failed to prune session index")
			}
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}
