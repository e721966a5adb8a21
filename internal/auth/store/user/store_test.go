package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"idhub/internal/auth/models"
	"idhub/internal/platform/sqldb"
	"idhub/pkg/platform/sentinel"
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindLinkedAccount(ctx context.Context, provider, providerAccountID string) (*models.LinkedAccount, error)
	UpsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error
	ListLinkedAccounts(ctx context.Context, userID string) ([]*models.LinkedAccount, error)
	DeleteLinkedAccount(ctx context.Context, provider, providerAccountID string) error
}

type UserStoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) userStore
	store    userStore
}

func (s *UserStoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, &UserStoreSuite{newStore: func(*testing.T) userStore { return New() }})
}

func TestSQLiteUserStoreSuite(t *testing.T) {
	suite.Run(t, &UserStoreSuite{newStore: func(t *testing.T) userStore {
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

// requireConflictKeepsTxUsable creates a duplicate user inside a
// transaction and checks the transaction can still read and commit.
func requireConflictKeepsTxUsable(t *testing.T, db *sqldb.DB) {
	t.Helper()
	ctx := context.Background()
	store := NewSQL(db)
	existing := newUser("race@example.com")
	require.NoError(t, store.Create(ctx, existing))

	err := db.RunInTx(ctx, func(ctx context.Context) error {
		err := store.Create(ctx, newUser("race@example.com"))
		require.ErrorIs(t, err, sentinel.ErrConflict)

		found, err := store.FindByEmail(ctx, "race@example.com")
		if err != nil {
			return err
		}
		require.Equal(t, existing.ID, found.ID)
		return store.UpsertLinkedAccount(ctx, &models.LinkedAccount{
			UserID: found.ID, Type: models.AccountTypeOAuth, Provider: "github", ProviderAccountID: "race",
		})
	})
	require.NoError(t, err)

	_, err = store.FindLinkedAccount(ctx, "github", "race")
	require.NoError(t, err)
}

func TestSQLiteCreateConflictKeepsTxUsable(t *testing.T) {
	db, err := sqldb.Open(context.Background(), sqldb.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	requireConflictKeepsTxUsable(t, db)
}

func newUser(email string) *models.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      "Jane",
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *UserStoreSuite) TestLookupBehavior() {
	ctx := context.Background()

	s.Run("returns user by ID and email", func() {
		u := newUser("jane.doe@example.com")
		s.Require().NoError(s.store.Create(ctx, u))

		byID, err := s.store.FindByID(ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(u.Email, byID.Email)
		s.Equal(models.RoleUser, byID.Role)
		s.True(u.CreatedAt.Equal(byID.CreatedAt))

		byEmail, err := s.store.FindByEmail(ctx, u.Email)
		s.Require().NoError(err)
		s.Equal(u.ID, byEmail.ID)
	})

	s.Run("email lookup is exact", func() {
		_, err := s.store.FindByEmail(ctx, "JANE.DOE@example.com")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(ctx, uuid.NewString())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *UserStoreSuite) TestCreateRejectsDuplicateEmail() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newUser("dup@example.com")))
	err := s.store.Create(ctx, newUser("dup@example.com"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *UserStoreSuite) TestUpdate() {
	ctx := context.Background()
	u := newUser("update@example.com")
	s.Require().NoError(s.store.Create(ctx, u))

	verified := time.Now().UTC().Truncate(time.Millisecond)
	u.Name = "Jane Updated"
	u.Image = "https://img.example/jane.png"
	u.EmailVerifiedAt = &verified
	s.Require().NoError(s.store.Update(ctx, u))

	found, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("Jane Updated", found.Name)
	s.Equal("https://img.example/jane.png", found.Image)
	s.Require().NotNil(found.EmailVerifiedAt)
	s.True(verified.Equal(*found.EmailVerifiedAt))

	missing := newUser("missing@example.com")
	s.Require().ErrorIs(s.store.Update(ctx, missing), sentinel.ErrNotFound)
}

func (s *UserStoreSuite) TestLinkedAccounts() {
	ctx := context.Background()
	owner := newUser("owner@example.com")
	other := newUser("other@example.com")
	s.Require().NoError(s.store.Create(ctx, owner))
	s.Require().NoError(s.store.Create(ctx, other))

	account := &models.LinkedAccount{
		UserID:            owner.ID,
		Type:              models.AccountTypeOAuth,
		Provider:          "github",
		ProviderAccountID: "42",
		AccessToken:       "first",
	}

	s.Run("insert then refresh", func() {
		s.Require().NoError(s.store.UpsertLinkedAccount(ctx, account))
		refreshed := *account
		refreshed.AccessToken = "second"
		s.Require().NoError(s.store.UpsertLinkedAccount(ctx, &refreshed))

		found, err := s.store.FindLinkedAccount(ctx, "github", "42")
		s.Require().NoError(err)
		s.Equal(owner.ID, found.UserID)
		s.Equal("second", found.AccessToken)
	})

	s.Run("cannot move an account to another user", func() {
		stolen := *account
		stolen.UserID = other.ID
		s.Require().ErrorIs(s.store.UpsertLinkedAccount(ctx, &stolen), sentinel.ErrConflict)
	})

	s.Run("lists accounts per user", func() {
		list, err := s.store.ListLinkedAccounts(ctx, owner.ID)
		s.Require().NoError(err)
		s.Len(list, 1)

		list, err = s.store.ListLinkedAccounts(ctx, other.ID)
		s.Require().NoError(err)
		s.Empty(list)
	})

	s.Run("unknown account", func() {
		_, err := s.store.FindLinkedAccount(ctx, "google", "nope")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("delete removes only the named account", func() {
		second := &models.LinkedAccount{UserID: owner.ID, Type: models.AccountTypeOIDC, Provider: "google", ProviderAccountID: "g-1"}
		s.Require().NoError(s.store.UpsertLinkedAccount(ctx, second))

		s.Require().NoError(s.store.DeleteLinkedAccount(ctx, "github", "42"))
		_, err := s.store.FindLinkedAccount(ctx, "github", "42")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		list, err := s.store.ListLinkedAccounts(ctx, owner.ID)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal("google", list[0].Provider)

		s.Require().ErrorIs(s.store.DeleteLinkedAccount(ctx, "github", "42"), sentinel.ErrNotFound)
	})
}
