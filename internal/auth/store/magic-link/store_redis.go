package magiclink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"idhub/internal/auth/models"
	"idhub/pkg/platform/sentinel"
)

const magicLinkKeyPrefix = "magiclink:"

// RedisStore relies on key expiry for the TTL and GETDEL for single use.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, link *models.MagicLink) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("marshal magic link: %w", err)
	}
	ok, err := s.client.SetNX(ctx, magicLinkKeyPrefix+link.Token, payload, time.Until(link.ExpiresAt)).Result()
	if err != nil {
		return fmt.Errorf("store magic link: %w", err)
	}
	if !ok {
		return fmt.Errorf("magic link token taken: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, token string, now time.Time) (*models.MagicLink, error) {
	payload, err := s.client.GetDel(ctx, magicLinkKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("magic link not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume magic link: %w", err)
	}
	var link models.MagicLink
	if err := json.Unmarshal(payload, &link); err != nil {
		return nil, fmt.Errorf("decode magic link: %w", err)
	}
	if link.IsExpired(now) {
		return nil, fmt.Errorf("magic link expired: %w", sentinel.ErrExpired)
	}
	link.Used = true
	return &link, nil
}
