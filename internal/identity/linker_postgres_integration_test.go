//go:build integration

package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"idhub/internal/auth/credential"
	userstore "idhub/internal/auth/store/user"
	"idhub/pkg/testutil/containers"
)

func TestPostgresConcurrentFirstLoginsCreateOneUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateTables(ctx, "accounts", "users"))

	users := userstore.NewSQL(pg.DB)
	l := New(users, credential.New(credential.AlgorithmSHA256),
		WithProviderLogin(),
		WithTransactor(pg.DB),
	)

	const workers = 16
	start := make(chan struct{})
	ids := make(chan string, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			provider := "github"
			if i%2 == 0 {
				provider = "google"
			}
			<-start
			u, err := l.Resolve(ctx, ProviderAssertion{Identity: ProviderIdentity{
				Provider: provider, AccountID: provider + "-ada", Email: "ada@example.com",
			}})
			if err != nil {
				errs <- err
				return
			}
			ids <- u.ID
		}()
	}
	close(start)
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	first := <-ids
	require.NotEmpty(t, first)
	for id := range ids {
		require.Equal(t, first, id)
	}

	accounts, err := users.ListLinkedAccounts(ctx, first)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}
