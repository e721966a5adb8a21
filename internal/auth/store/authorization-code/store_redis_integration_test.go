//go:build integration

package authorizationcode_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authorizationcode "idhub/internal/auth/store/authorization-code"
	"idhub/pkg/platform/sentinel"
	"idhub/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *authorizationcode.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = authorizationcode.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) issue(ttl time.Duration) string {
	record, err := s.store.Issue(context.Background(), authorizationcode.IssueParams{
		UserID:      "u1",
		ClientID:    "c1",
		RedirectURI: "https://app/cb",
		Scope:       "openid",
	}, ttl)
	s.Require().NoError(err)
	return record.Code
}

func (s *RedisStoreSuite) TestConsumeStates() {
	ctx := context.Background()
	now := time.Now()

	s.Run("second consume reports already used", func() {
		code := s.issue(time.Minute)
		consumed, err := s.store.Consume(ctx, code, "c1", "https://app/cb", now)
		s.Require().NoError(err)
		s.Equal("u1", consumed.UserID)
		s.True(consumed.Used)

		_, err = s.store.Consume(ctx, code, "c1", "https://app/cb", now)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("redirect mismatch reports not found", func() {
		code := s.issue(time.Minute)
		_, err := s.store.Consume(ctx, code, "c1", "https://b.example/cb", now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired code reports expired", func() {
		code := s.issue(time.Minute)
		_, err := s.store.Consume(ctx, code, "c1", "https://app/cb", now.Add(2*time.Minute))
		s.ErrorIs(err, sentinel.ErrExpired)
	})
}

func (s *RedisStoreSuite) TestConcurrentConsume() {
	code := s.issue(time.Minute)
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Consume(context.Background(), code, "c1", "https://app/cb", time.Now()); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), successes.Load())
}
