package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"relaywatch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "test.db")
	db, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestNew_CreatesFileAndDirectory(t *testing.T) {
	_, path := openTestDB(t)

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db, _ := openTestDB(t)

	require.NoError(t, db.migrate())
	require.NoError(t, db.migrate())
}

func TestEventRepository_AppendsInCallOrder(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	base := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	states := []model.DeviceState{model.DeviceOn, model.DeviceOn, model.DeviceOff, model.DeviceUnknown}
	for i, st := range states {
		entry := &model.LogEntry{Timestamp: base.Add(time.Duration(i) * time.Second), Count: i, DeviceState: st}
		id, err := repo.Insert(ctx, entry)
		require.NoError(t, err)
		assert.Equal(t, id, entry.ID)
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(states), n)

	entries, err := repo.GetBetween(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, len(states))
	for i, e := range entries {
		assert.Equal(t, i, e.Count)
		assert.Equal(t, states[i], e.DeviceState)
		assert.True(t, e.Timestamp.Equal(base.Add(time.Duration(i)*time.Second)))
		if i > 0 {
			assert.Greater(t, e.ID, entries[i-1].ID)
			assert.False(t, e.Timestamp.Before(entries[i-1].Timestamp))
		}
	}
}

func TestEventRepository_GetBetweenExcludesOtherDays(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{day.Add(-time.Minute), day.Add(time.Hour), day.Add(24 * time.Hour)} {
		_, err := repo.Insert(ctx, &model.LogEntry{Timestamp: ts, Count: 1, DeviceState: model.DeviceOn})
		require.NoError(t, err)
	}

	entries, err := repo.GetBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Timestamp.Equal(day.Add(time.Hour)))
}

func TestEventRepository_GetLatestNewestFirst(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 5; i++ {
		_, err := repo.Insert(ctx, &model.LogEntry{Timestamp: now, Count: i, DeviceState: model.DeviceOff})
		require.NoError(t, err)
	}

	entries, err := repo.GetLatest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 4, entries[0].Count)
	assert.Equal(t, 3, entries[1].Count)
}

func TestStateStore_SetGetOverwrite(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewStateStore(db)
	ctx := context.Background()

	_, _, ok, err := store.Get(ctx, "current_count")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "current_count", "2"))
	require.NoError(t, store.Set(ctx, "current_count", "7"))

	value, updatedAt, ok, err := store.Get(ctx, "current_count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", value)
	assert.WithinDuration(t, time.Now(), updatedAt, 5*time.Second)

	require.NoError(t, store.Delete(ctx, "current_count"))
	_, _, ok, err = store.Get(ctx, "current_count")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	writer, err := New(path)
	require.NoError(t, err)
	require.NoError(t, NewStateStore(writer).Set(ctx, "current_count", "5"))
	require.NoError(t, writer.Close())

	reader, err := New(path)
	require.NoError(t, err)
	defer reader.Close()

	value, _, ok, err := NewStateStore(reader).Get(ctx, "current_count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5", value)
}
