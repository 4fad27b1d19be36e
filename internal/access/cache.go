// Package access holds the consumer-side permission engine: a process-local
// cache of the principal's grants and a synchronous evaluator over it.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"labguard/internal/model"
)

// FetchFunc loads the principal's grants from the authoritative source,
// typically oracle.Client.UserPermissions.
type FetchFunc func(ctx context.Context) ([]model.Permission, error)

// Cache holds the last-fetched grants for one principal. Refresh swaps the
// whole snapshot by reference, so readers see either the fully-old or the
// fully-new list, never a mix. Concurrent refreshes coalesce into a single
// in-flight fetch.
type Cache struct {
	logger   *slog.Logger
	fetch    FetchFunc
	snapshot atomic.Pointer[[]model.Permission]
	loaded   atomic.Bool
	stale    atomic.Bool
	group    singleflight.Group
}

// NewCache creates an empty, unloaded cache. Local checks against an
// unloaded cache fail closed.
func NewCache(logger *slog.Logger, fetch FetchFunc) *Cache {
	return &Cache{
		logger: logger.With("component", "permission_cache"),
		fetch:  fetch,
	}
}

// Refresh fetches the grant list and atomically installs it. Callers that
// arrive while a refresh is in flight share its result instead of issuing a
// duplicate fetch. On fetch failure the last-known-good snapshot stays
// installed.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		// The fetch is shared with every coalesced caller, so it must not
		// die with the caller that happened to start it.
		grants, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch permissions: %w", err)
		}
		c.snapshot.Store(&grants)
		c.loaded.Store(true)
		c.stale.Store(false)
		c.logger.Debug("permission snapshot installed", "grants", len(grants))
		return nil, nil
	})
	if err != nil {
		c.logger.Error("permission refresh failed", "error", err, "shared", shared)
		return err
	}
	return nil
}

// Snapshot returns the current grant list. The returned slice must be
// treated as immutable; it is shared between all readers.
func (c *Cache) Snapshot() []model.Permission {
	p := c.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Loaded reports whether at least one refresh has completed successfully.
func (c *Cache) Loaded() bool {
	return c.loaded.Load()
}

// MarkStale records an external staleness signal. Reads keep serving the
// last-known-good snapshot; the owner decides when to Refresh.
func (c *Cache) MarkStale() {
	c.stale.Store(true)
}

// Stale reports whether a staleness signal arrived since the last refresh.
func (c *Cache) Stale() bool {
	return c.stale.Load()
}

// Clear drops the snapshot, e.g. on logout. Subsequent local checks fail
// closed until the next refresh.
func (c *Cache) Clear() {
	c.snapshot.Store(nil)
	c.loaded.Store(false)
	c.stale.Store(false)
}
