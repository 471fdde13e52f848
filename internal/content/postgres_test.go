package content

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine3.22",
		postgres.WithDatabase("prompts"),
		postgres.WithUsername("sketch"),
		postgres.WithPassword("sketch"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	catalog, err := NewPostgresCatalog(ctx, url)
	require.NoError(t, err)
	t.Cleanup(catalog.Close)

	defaults, err := DefaultCatalog(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(ctx, defaults.All()))
	// Seeding twice upserts.
	require.NoError(t, catalog.Seed(ctx, defaults.All()))

	t.Run("Count", func(t *testing.T) {
		n, err := catalog.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(defaults.All()), n)
	})

	t.Run("SampleIDs", func(t *testing.T) {
		ids, err := catalog.SampleIDs(ctx, 5)
		require.NoError(t, err)
		assert.Len(t, ids, 5)
		seen := map[string]bool{}
		for _, id := range ids {
			assert.False(t, seen[id])
			seen[id] = true
		}

		_, err = catalog.SampleIDs(ctx, 500)
		assert.ErrorIs(t, err, internal.ErrInvalidSettings)
	})

	t.Run("Get", func(t *testing.T) {
		want, err := defaults.Get(ctx, "house")
		require.NoError(t, err)
		got, err := catalog.Get(ctx, "house")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := catalog.Get(ctx, "ghost")
		assert.ErrorIs(t, err, internal.ErrPromptNotFound)
	})
}
