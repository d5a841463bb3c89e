package catalog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Loader fetches the full catalog from persistent storage.
type Loader interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
}

type snapshot struct {
	byName map[string]Permission
	byID   map[int64]Permission
	all    []Permission
}

// Cache holds an immutable catalog snapshot swapped atomically on refresh.
// Readers never block: a refresh builds a new snapshot and swaps the pointer.
type Cache struct {
	loader   Loader
	logger   *slog.Logger
	interval time.Duration
	current  atomic.Pointer[snapshot]
}

// NewCache constructs a Cache. Call Start to load the initial snapshot and
// begin background refresh.
func NewCache(loader Loader, logger *slog.Logger, interval time.Duration) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Cache{loader: loader, logger: logger, interval: interval}
}

// Start performs the initial load and launches the refresh loop. The loop
// stops when ctx is cancelled. A failed refresh keeps serving the previous
// snapshot.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.Warn("catalog refresh failed", slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

// Refresh loads the catalog and swaps in a new snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	perms, err := c.loader.ListPermissions(ctx)
	if err != nil {
		return err
	}
	snap := &snapshot{
		byName: make(map[string]Permission, len(perms)),
		byID:   make(map[int64]Permission, len(perms)),
		all:    perms,
	}
	for _, p := range perms {
		snap.byName[p.Name] = p
		snap.byID[p.ID] = p
	}
	c.current.Store(snap)
	return nil
}

// Lookup resolves a permission by name. Returns ErrUnknownPermission when the
// name is not registered.
func (c *Cache) Lookup(name string) (Permission, error) {
	snap := c.current.Load()
	if snap == nil {
		return Permission{}, ErrUnknownPermission
	}
	p, ok := snap.byName[name]
	if !ok {
		return Permission{}, ErrUnknownPermission
	}
	return p, nil
}

// LookupID resolves a permission by catalog ID.
func (c *Cache) LookupID(id int64) (Permission, error) {
	snap := c.current.Load()
	if snap == nil {
		return Permission{}, ErrUnknownPermission
	}
	p, ok := snap.byID[id]
	if !ok {
		return Permission{}, ErrUnknownPermission
	}
	return p, nil
}

// All returns the permissions in the current snapshot. The returned slice is
// shared and must not be mutated.
func (c *Cache) All() []Permission {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return snap.all
}
