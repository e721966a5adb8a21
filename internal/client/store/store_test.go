package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idhub/internal/client/models"
	"idhub/internal/platform/sqldb"
	"idhub/pkg/platform/sentinel"
)

type clientStore interface {
	Create(ctx context.Context, c *models.Client) error
	FindByClientID(ctx context.Context, clientID string) (*models.Client, error)
}

type ClientStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) clientStore
	store    clientStore
}

func (s *ClientStoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func TestInMemoryClientStore(t *testing.T) {
	suite.Run(t, &ClientStoreSuite{newStore: func(*testing.T) clientStore { return NewInMemory() }})
}

func TestSQLiteClientStore(t *testing.T) {
	suite.Run(t, &ClientStoreSuite{newStore: func(t *testing.T) clientStore {
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

func testClient(clientID string) *models.Client {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Client{
		ID:            "app-" + clientID,
		Name:          "App",
		ClientID:      clientID,
		ClientSecret:  "s1",
		RedirectURIs:  []string{"https://app/cb", "http://localhost:3000/cb"},
		AllowedScopes: []string{"openid", "profile"},
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *ClientStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	c := testClient("c1")
	s.Require().NoError(s.store.Create(ctx, c))

	found, err := s.store.FindByClientID(ctx, "c1")
	s.Require().NoError(err)
	s.Equal(c.RedirectURIs, found.RedirectURIs)
	s.Equal(c.AllowedScopes, found.AllowedScopes)
	s.Equal("s1", found.ClientSecret)
	s.True(found.Active)
	s.True(c.CreatedAt.Equal(found.CreatedAt))
}

func (s *ClientStoreSuite) TestDuplicateClientID() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, testClient("dup")))
	s.Require().ErrorIs(s.store.Create(ctx, testClient("dup")), sentinel.ErrConflict)
}

func (s *ClientStoreSuite) TestUnknownClient() {
	_, err := s.store.FindByClientID(context.Background(), "nope")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
