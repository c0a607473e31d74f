package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGStore(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping postgres store test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	written := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	store := NewPGStore(pool, WithClock(fixedClock(written)))
	require.NoError(t, store.Migrate(ctx))

	name := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = store.Delete(context.Background(), name) })

	_, err = store.Read(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, name, []user{{ID: "1", Name: "Ada"}}))
	require.NoError(t, store.Save(ctx, name, []user{{ID: "2", Name: "Grace"}}))

	got, err := Load(ctx, store, name, []user(nil))
	require.NoError(t, err)
	assert.Equal(t, []user{{ID: "2", Name: "Grace"}}, got)

	entry, err := store.Read(ctx, name)
	require.NoError(t, err)
	assert.True(t, written.Equal(entry.WrittenAt))

	stamp, err := store.WrittenAt(ctx, name)
	require.NoError(t, err)
	assert.True(t, written.Equal(stamp))

	require.NoError(t, store.Delete(ctx, name))
	exists, err := Exists(ctx, store, name)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.WrittenAt(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)
}
