package assets

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jhamf/actasync/internal/db"
	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/models"
)

func setupTestRepo(t *testing.T) *db.Repository {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = sqlDB.Exec(`
		CREATE TABLE assets_cache (
			id TEXT PRIMARY KEY,
			serial TEXT NOT NULL UNIQUE,
			hostname TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			ticket_id TEXT NOT NULL DEFAULT '',
			cached_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	repo := db.NewRepository(sqlDB)
	t.Cleanup(func() {
		repo.Close()
		sqlDB.Close()
	})
	return repo
}

type stubFetcher struct {
	asset *models.AssetCacheEntry
	err   error
	calls int
}

func (f *stubFetcher) FindComputer(_ context.Context, _ string) (*models.AssetCacheEntry, error) {
	f.calls++
	return f.asset, f.err
}

func TestResolvePrefersCache(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.CacheAsset(&models.AssetCacheEntry{Serial: "SN-001", Hostname: "PC-01"})
	require.NoError(t, err)

	fetcher := &stubFetcher{}
	r := NewResolver(repo, fetcher)

	got, err := r.Resolve(context.Background(), "SN-001")
	require.NoError(t, err)
	assert.Equal(t, "PC-01", got.Hostname)
	assert.Equal(t, 0, fetcher.calls, "a cached serial must not hit the remote")
}

func TestResolveFetchesAndCaches(t *testing.T) {
	repo := setupTestRepo(t)
	fetcher := &stubFetcher{asset: &models.AssetCacheEntry{Serial: "SN-002", Hostname: "PC-02"}}
	r := NewResolver(repo, fetcher)

	got, err := r.Resolve(context.Background(), "SN-002")
	require.NoError(t, err)
	assert.Equal(t, "PC-02", got.Hostname)

	// Second lookup resolves offline.
	got, err = r.Resolve(context.Background(), "SN-002")
	require.NoError(t, err)
	assert.Equal(t, "PC-02", got.Hostname)
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolveUnknownSerial(t *testing.T) {
	repo := setupTestRepo(t)
	r := NewResolver(repo, &stubFetcher{})

	_, err := r.Resolve(context.Background(), "SN-404")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestResolveCacheOnly(t *testing.T) {
	repo := setupTestRepo(t)
	r := NewResolver(repo, nil)

	_, err := r.Resolve(context.Background(), "SN-404")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestResolveRemoteFailure(t *testing.T) {
	repo := setupTestRepo(t)
	r := NewResolver(repo, &stubFetcher{err: errors.New("connection refused")})

	_, err := r.Resolve(context.Background(), "SN-001")
	assert.True(t, apperrors.Is(err, apperrors.ErrSubmission))
}

func TestResolveRequiresSerial(t *testing.T) {
	r := NewResolver(setupTestRepo(t), nil)

	_, err := r.Resolve(context.Background(), "")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}
