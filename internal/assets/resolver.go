// Package assets resolves equipment details by serial number, cache
// first, so the capture form keeps working offline. Results are
// advisory prefill data; nothing in the sync path depends on them.
package assets

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jhamf/actasync/internal/db"
	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
	"github.com/jhamf/actasync/internal/models"
)

// Fetcher looks an asset up in the remote inventory. A nil entry with
// a nil error means the inventory has no match.
type Fetcher interface {
	FindComputer(ctx context.Context, query string) (*models.AssetCacheEntry, error)
}

// Resolver answers serial lookups from the local cache and falls back
// to the remote inventory, caching whatever it finds.
type Resolver struct {
	repo    *db.Repository
	fetcher Fetcher
}

// NewResolver creates a Resolver. fetcher may be nil for a cache-only
// resolver.
func NewResolver(repo *db.Repository, fetcher Fetcher) *Resolver {
	return &Resolver{repo: repo, fetcher: fetcher}
}

// Resolve returns the asset matching the serial. Cached entries win;
// a remote hit is cached before returning so the next lookup works
// offline.
func (r *Resolver) Resolve(ctx context.Context, serial string) (*models.AssetCacheEntry, error) {
	if serial == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "serial is required")
	}

	cached, err := r.repo.GetAssetBySerial(serial)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read asset cache", err)
	}

	if r.fetcher == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "asset not cached: "+serial)
	}

	asset, err := r.fetcher.FindComputer(ctx, serial)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSubmission, "remote asset lookup failed", err)
	}
	if asset == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "asset not found: "+serial)
	}

	if _, err := r.repo.CacheAsset(asset); err != nil {
		// The lookup still succeeded; losing the cache entry only
		// costs a future remote round trip.
		logging.Warn("Failed to cache asset", map[string]interface{}{
			"serial": serial,
			"error":  err.Error(),
		})
	}
	return asset, nil
}
