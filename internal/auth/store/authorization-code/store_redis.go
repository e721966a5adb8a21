package authorizationcode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"idhub/internal/auth/models"
	"idhub/pkg/platform/sentinel"
)

const authCodeKeyPrefix = "authcode:"

// Script results for consumeScript. Success returns the record fields instead.
const (
	consumeMissing = 0
	consumeUsed    = 1
	consumeExpired = 2
)

// consumeScript performs the check-and-set on the used field atomically.
// KEYS[1] code key; ARGV client_id, redirect_uri, now (unix millis).
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local f = redis.call('HMGET', KEYS[1], 'client_id', 'redirect_uri', 'used', 'expires_at')
if f[1] ~= ARGV[1] or f[2] ~= ARGV[2] then
  return 0
end
if f[3] == '1' then
  return 1
end
if tonumber(f[4]) <= tonumber(ARGV[3]) then
  return 2
end
redis.call('HSET', KEYS[1], 'used', '1')
return redis.call('HGETALL', KEYS[1])
`)

// RedisStore keeps codes as hashes that expire with the code itself.
type RedisStore struct {
	client *redis.Client
	opts   options
}

func NewRedis(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: buildOptions(opts)}
}

func (s *RedisStore) Issue(ctx context.Context, params IssueParams, ttl time.Duration) (*models.AuthorizationCodeRecord, error) {
	record, err := newRecord(params, ttl, s.opts.now())
	if err != nil {
		return nil, err
	}
	key := authCodeKeyPrefix + record.Code
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, toHash(record))
	pipe.PExpireAt(ctx, key, record.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store authorization code: %w", err)
	}
	return record, nil
}

func (s *RedisStore) FindByCode(ctx context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	fields, err := s.client.HGetAll(ctx, authCodeKeyPrefix+code).Result()
	if err != nil {
		return nil, fmt.Errorf("find authorization code: %w", err)
	}
	if len(fields) == 0 {
		return nil, errNotFound
	}
	return fromHash(fields)
}

func (s *RedisStore) Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{authCodeKeyPrefix + code},
		clientID, redirectURI, now.UnixMilli(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	switch v := res.(type) {
	case int64:
		switch v {
		case consumeUsed:
			return nil, fmt.Errorf("authorization code already used: %w", sentinel.ErrAlreadyUsed)
		case consumeExpired:
			return nil, fmt.Errorf("authorization code expired: %w", sentinel.ErrExpired)
		default:
			return nil, errNotFound
		}
	case []interface{}:
		fields := make(map[string]string, len(v)/2)
		for i := 0; i+1 < len(v); i += 2 {
			k, _ := v[i].(string)
			val, _ := v[i+1].(string)
			fields[k] = val
		}
		return fromHash(fields)
	default:
		return nil, fmt.Errorf("consume authorization code: unexpected script result %T", res)
	}
}

func toHash(r *models.AuthorizationCodeRecord) map[string]any {
	used := "0"
	if r.Used {
		used = "1"
	}
	return map[string]any{
		"code":                  r.Code,
		"user_id":               r.UserID,
		"client_id":             r.ClientID,
		"redirect_uri":          r.RedirectURI,
		"scope":                 r.Scope,
		"code_challenge":        r.CodeChallenge,
		"code_challenge_method": r.CodeChallengeMethod,
		"expires_at":            strconv.FormatInt(r.ExpiresAt.UnixMilli(), 10),
		"created_at":            strconv.FormatInt(r.CreatedAt.UnixMilli(), 10),
		"used":                  used,
	}
}

func fromHash(f map[string]string) (*models.AuthorizationCodeRecord, error) {
	expiresAt, err := strconv.ParseInt(f["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode authorization code expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode authorization code created_at: %w", err)
	}
	return &models.AuthorizationCodeRecord{
		Code:                f["code"],
		UserID:              f["user_id"],
		ClientID:            f["client_id"],
		RedirectURI:         f["redirect_uri"],
		Scope:               f["scope"],
		CodeChallenge:       f["code_challenge"],
		CodeChallengeMethod: f["code_challenge_method"],
		ExpiresAt:           time.UnixMilli(expiresAt).UTC(),
		CreatedAt:           time.UnixMilli(createdAt).UTC(),
		Used:                f["used"] == "1",
	}, nil
}
