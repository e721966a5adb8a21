package authorizationcode

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idhub/internal/auth/models"
	"idhub/internal/platform/sqldb"
	"idhub/pkg/platform/sentinel"
)

// codeStore is the behaviour shared by every backend.
type codeStore interface {
	Issue(ctx context.Context, params IssueParams, ttl time.Duration) (*models.AuthorizationCodeRecord, error)
	FindByCode(ctx context.Context, code string) (*models.AuthorizationCodeRecord, error)
	Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error)
}

// AuthCodeStoreSuite exercises the consume-once contract against one backend.
type AuthCodeStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) codeStore
	store    codeStore
}

func (s *AuthCodeStoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func TestInMemoryAuthCodeStore(t *testing.T) {
	suite.Run(t, &AuthCodeStoreSuite{newStore: func(*testing.T) codeStore { return New() }})
}

func TestSQLiteAuthCodeStore(t *testing.T) {
	suite.Run(t, &AuthCodeStoreSuite{newStore: func(t *testing.T) codeStore {
		db, err := sqldb.Open(context.Background(), sqldb.DialectSQLite, ":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		if err := db.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return NewSQL(db)
	}})
}

var defaultParams = IssueParams{
	UserID:              "u1",
	ClientID:            "c1",
	RedirectURI:         "https://app/cb",
	Scope:               "openid profile",
	CodeChallenge:       "challenge",
	CodeChallengeMethod: "S256",
}

func (s *AuthCodeStoreSuite) issue() *models.AuthorizationCodeRecord {
	record, err := s.store.Issue(context.Background(), defaultParams, time.Minute)
	s.Require().NoError(err)
	return record
}

func (s *AuthCodeStoreSuite) TestIssue() {
	ctx := context.Background()

	s.Run("persists an unused code with all bindings", func() {
		record := s.issue()
		s.NotEmpty(record.Code)
		s.False(record.Used)

		found, err := s.store.FindByCode(ctx, record.Code)
		s.Require().NoError(err)
		s.Equal(record.UserID, found.UserID)
		s.Equal(record.ClientID, found.ClientID)
		s.Equal(record.RedirectURI, found.RedirectURI)
		s.Equal(record.Scope, found.Scope)
		s.Equal(record.CodeChallenge, found.CodeChallenge)
		s.Equal(record.CodeChallengeMethod, found.CodeChallengeMethod)
		s.WithinDuration(record.ExpiresAt, found.ExpiresAt, time.Millisecond)
		s.False(found.Used)
	})

	s.Run("codes are unique", func() {
		a, b := s.issue(), s.issue()
		s.NotEqual(a.Code, b.Code)
	})

	s.Run("rejects non-positive ttl", func() {
		_, err := s.store.Issue(ctx, defaultParams, 0)
		s.Require().Error(err)
	})

	s.Run("returns ErrNotFound for unknown code", func() {
		_, err := s.store.FindByCode(ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *AuthCodeStoreSuite) TestConsume() {
	ctx := context.Background()
	now := time.Now()

	s.Run("fresh code can be consumed once", func() {
		record := s.issue()

		consumed, err := s.store.Consume(ctx, record.Code, "c1", "https://app/cb", now)
		s.Require().NoError(err)
		s.True(consumed.Used)
		s.Equal("u1", consumed.UserID)
		s.Equal("challenge", consumed.CodeChallenge)

		_, err = s.store.Consume(ctx, record.Code, "c1", "https://app/cb", now)
		s.Require().Error(err)
		s.True(IsRedemptionFailure(err))
	})

	s.Run("redirect mismatch looks like not found and leaves code unused", func() {
		record := s.issue()

		_, err := s.store.Consume(ctx, record.Code, "c1", "https://b.example/cb", now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.Consume(ctx, record.Code, "c1", "https://app/cb", now)
		s.Require().NoError(err)
	})

	s.Run("client mismatch looks like not found", func() {
		record := s.issue()
		_, err := s.store.Consume(ctx, record.Code, "c2", "https://app/cb", now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired code is rejected", func() {
		record := s.issue()
		_, err := s.store.Consume(ctx, record.Code, "c1", "https://app/cb", record.ExpiresAt.Add(time.Second))
		s.Require().Error(err)
		s.True(IsRedemptionFailure(err))
	})

	s.Run("unknown code is rejected", func() {
		_, err := s.store.Consume(ctx, "missing", "c1", "https://app/cb", now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *AuthCodeStoreSuite) TestConcurrentConsumeHasOneWinner() {
	record := s.issue()
	now := time.Now()

	const attempts = 100
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		failures  atomic.Int32
	)
	start := make(chan struct{})
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.store.Consume(context.Background(), record.Code, "c1", "https://app/cb", now)
			if err == nil {
				successes.Add(1)
				return
			}
			if IsRedemptionFailure(err) {
				failures.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(attempts-1), failures.Load())
}

func TestInMemoryConsumeHonoursCancellation(t *testing.T) {
	store := New()
	record, err := store.Issue(context.Background(), defaultParams, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Consume(ctx, record.Code, "c1", "https://app/cb", time.Now()); err == nil {
		t.Fatal("expected cancelled consume to fail")
	}

	found, err := store.FindByCode(context.Background(), record.Code)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Used {
		t.Fatal("cancelled consume must leave the code unused")
	}
}

func TestWithClockStampsExpiry(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := New(WithClock(func() time.Time { return fixed }))

	record, err := store.Issue(context.Background(), defaultParams, 5*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !record.CreatedAt.Equal(fixed) || !record.ExpiresAt.Equal(fixed.Add(5*time.Minute)) {
		t.Fatalf("unexpected timestamps: created=%v expires=%v", record.CreatedAt, record.ExpiresAt)
	}
}
