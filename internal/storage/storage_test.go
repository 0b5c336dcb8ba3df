package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audio-retro/internal/storage"
	"github.com/ignite/audio-retro/internal/storage/storagetest"
)

func TestListSkipsEmptyObjects(t *testing.T) {
	fake := storagetest.NewFakeS3()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	fake.Seed("exports/a.csv", "x,y", ts)
	fake.Seed("exports/folder/", "", ts)
	fake.Seed("other/b.csv", "z", ts)

	store := storage.NewS3StoreWithClient(fake, "bucket")
	objs, err := store.List(context.Background(), "exports/")
	require.NoError(t, err)

	require.Len(t, objs, 1)
	assert.Equal(t, "exports/a.csv", objs[0].Key)
	assert.Equal(t, int64(3), objs[0].Size)
	assert.Equal(t, ts, objs[0].LastModified)
}

func TestPutGetMove(t *testing.T) {
	fake := storagetest.NewFakeS3()
	store := storage.NewS3StoreWithClient(fake, "bucket")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "reports/r.txt", []byte("hello"), "text/plain"))
	data, err := store.Get(ctx, "reports/r.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.Move(ctx, "reports/r.txt", "trash/reports/r.txt"))
	assert.Equal(t, []string{"trash/reports/r.txt"}, fake.Keys())

	_, err = store.Get(ctx, "reports/r.txt")
	assert.Error(t, err)
}

func TestMoveMissingSourceKeepsNothing(t *testing.T) {
	fake := storagetest.NewFakeS3()
	store := storage.NewS3StoreWithClient(fake, "bucket")

	err := store.Move(context.Background(), "missing.csv", "trash/missing.csv")
	assert.Error(t, err)
	assert.Empty(t, fake.Keys())
}

func TestPing(t *testing.T) {
	fake := storagetest.NewFakeS3()
	store := storage.NewS3StoreWithClient(fake, "bucket")
	assert.NoError(t, store.Ping(context.Background()))

	fake.HeadErr = errors.New("forbidden")
	assert.ErrorContains(t, store.Ping(context.Background()), "forbidden")
}
