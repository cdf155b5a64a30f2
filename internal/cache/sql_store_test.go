package cache

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestSQLStoragePutMatchAndUpsert(t *testing.T) {
	storage := newSQLTestStorage(t)
	ctx := context.Background()

	store, err := storage.Open(ctx, "lazier-docs-cache-v1")
	require.NoError(t, err)

	key := "https://docs.local/site/guide.md"
	header := http.Header{}
	header.Set("Content-Type", "text/markdown")
	require.NoError(t, store.Put(ctx, key, NewSnapshot(http.StatusOK, header, []byte("# v1"))))
	require.NoError(t, store.Put(ctx, key, NewSnapshot(http.StatusOK, header, []byte("# v2"))))

	got, err := store.Match(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "# v2", string(got.Body()))
	require.Equal(t, "text/markdown", got.Header.Get("Content-Type"))
	require.Equal(t, "OK", got.Status)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{key}, keys)

	_, err = store.Match(ctx, "https://docs.local/site/missing.md")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStorageGenerations(t *testing.T) {
	storage := newSQLTestStorage(t)
	ctx := context.Background()

	v1, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	_, err = storage.Open(ctx, "v2")
	require.NoError(t, err)

	key := "https://docs.local/site/index.html"
	require.NoError(t, v1.Put(ctx, key, NewSnapshot(http.StatusOK, nil, []byte("shell"))))

	names, err := storage.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, names)

	snap, err := storage.Match(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "shell", string(snap.Body()))

	existed, err := storage.Delete(ctx, "v1")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = storage.Delete(ctx, "v1")
	require.NoError(t, err)
	require.False(t, existed)

	_, err = storage.Match(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)

	// 已删除的缓存代在再次写入时自动重建。
	require.NoError(t, v1.Put(ctx, key, NewSnapshot(http.StatusOK, nil, []byte("again"))))
	names, err = storage.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, names)
}

func TestSQLStorageDeleteEntry(t *testing.T) {
	storage := newSQLTestStorage(t)
	ctx := context.Background()

	store, err := storage.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", NewSnapshot(http.StatusOK, nil, []byte("x"))))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err = store.Match(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenStorageRejectsUnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), Options{Driver: "redis", StoragePath: t.TempDir()})
	require.Error(t, err)

	_, err = OpenStorage(context.Background(), Options{Driver: DriverPostgres})
	require.Error(t, err)
}

func TestOpenStorageSQLiteDefaultsToStoragePath(t *testing.T) {
	dir := t.TempDir()
	storage, err := OpenStorage(context.Background(), Options{Driver: DriverSQLite, StoragePath: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	_, err = storage.Open(context.Background(), "v1")
	require.NoError(t, err)
}

func newSQLTestStorage(t *testing.T) Storage {
	t.Helper()

	dsn := fmt.Sprintf("file:cache_%d?mode=memory&cache=shared", time.Now().UnixNano())
	sqldb, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	storage, err := NewSQLStorage(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}
