//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"giveaway-bot/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("giveaways_test"),
		tcpostgres.WithUsername("test_user"),
		tcpostgres.WithPassword("test_password"),
		tcpostgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{"test": "giveaway-bot", "test-name": t.Name()}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(url))
	require.NoError(t, Migrate(url))

	store, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestGiveawayLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	endsAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	require.NoError(t, store.CreateGiveaway(ctx, storage.Giveaway{
		GuildID: "g1", ChannelID: "c1", MessageID: "m1", AuthorID: "a1",
		Prize: "Nitro", WinnerCount: 2, EndsAt: endsAt,
	}))
	require.NoError(t, store.AddEntrant(ctx, "m1", "u1"))
	require.NoError(t, store.AddEntrant(ctx, "m1", "u2"))
	require.NoError(t, store.AddEntrant(ctx, "m1", "u2"))
	require.NoError(t, store.AddEntrant(ctx, "m1", "u3"))
	require.NoError(t, store.RemoveEntrant(ctx, "m1", "u3"))

	active, err := store.ListActiveGiveaways(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"u1", "u2"}, active[0].Entered)
	assert.True(t, endsAt.Equal(active[0].EndsAt))
	assert.Nil(t, active[0].WonBy)

	require.NoError(t, store.EndGiveaway(ctx, "m1", []string{"u2", "u1"}))
	assert.ErrorIs(t, store.EndGiveaway(ctx, "m1", nil), storage.ErrNotFound)

	got, err := store.GetGiveaway(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Ended)
	assert.Equal(t, []string{"u2", "u1"}, got.WonBy)

	_, err = store.GetGiveaway(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEndWithoutWinners(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateGiveaway(ctx, storage.Giveaway{
		GuildID: "g1", ChannelID: "c1", MessageID: "m1", AuthorID: "a1",
		Prize: "Nitro", WinnerCount: 1, EndsAt: time.Now(),
	}))
	require.NoError(t, store.EndGiveaway(ctx, "m1", nil))

	got, err := store.GetGiveaway(ctx, "m1")
	require.NoError(t, err)
	assert.NotNil(t, got.WonBy)
	assert.Empty(t, got.WonBy)
}

func TestGuildSettingsAndAudit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertGuildSettings(ctx, storage.GuildSettings{GuildID: "g1", Language: "fr"}))
	settings, err := store.GetGuildSettings(ctx, "g1", storage.GuildSettings{Language: "en", Prefix: "?!"})
	require.NoError(t, err)
	assert.Equal(t, "fr", settings.Language)
	assert.Equal(t, "?!", settings.Prefix)

	require.NoError(t, store.AddAuditLog(ctx, storage.AuditLog{GuildID: "g1", Level: "INFO", Event: "giveaway_started", CreatedAt: time.Now()}))
	require.NoError(t, store.AddAuditLog(ctx, storage.AuditLog{GuildID: "g1", Level: "INFO", Event: "giveaway_ended", CreatedAt: time.Now().AddDate(0, 0, -40)}))
	require.NoError(t, store.CleanupAuditLogs(ctx, 30))

	logs, err := store.ListAuditLogs(ctx, "g1", time.Now().AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "giveaway_started", logs[0].Event)
}
