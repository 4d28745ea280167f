package directory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is a read-only view of one resolved binding plus its tenant profile
type Entry struct {
	Binding *directory.TenantBinding
	Profile *directory.TenantProfile
}

// snapshot is one immutable generation of the directory. Readers hold a
// pointer to a whole generation so a concurrent refresh can never expose a
// half-updated map.
type snapshot struct {
	entries map[string]*Entry
	builtAt time.Time
}

func snapshotKey(address string, kind directory.ChannelKind) string {
	return address + "|" + string(kind)
}

// Cache is the process-wide directory mapping channel addresses to tenants.
// It is built in bulk on startup, refreshed on demand or on a timer, and
// swapped atomically. Register and Release write through to the persistent
// store and rebuild the snapshot before returning, so a subsequent Resolve
// observes the change immediately.
type Cache struct {
	bindings directory.BindingRepository
	profiles directory.TenantProfileRepository
	logger   *zap.Logger

	current atomic.Pointer[snapshot]

	// refreshMu serializes snapshot rebuilds; readers never take it.
	refreshMu sync.Mutex
}

// NewCache creates a directory cache. Call Refresh before serving traffic.
func NewCache(
	bindings directory.BindingRepository,
	profiles directory.TenantProfileRepository,
	logger *zap.Logger,
) *Cache {
	c := &Cache{
		bindings: bindings,
		profiles: profiles,
		logger:   logger,
	}
	c.current.Store(&snapshot{entries: map[string]*Entry{}, builtAt: time.Time{}})
	return c
}

// Resolve maps a channel address to its tenant. NotFound is terminal for the
// current snapshot: the gateway refuses service rather than guessing, since
// a default-tenant fallback would be a cross-tenant leak.
func (c *Cache) Resolve(address string, kind directory.ChannelKind) (*Entry, error) {
	normalized := directory.NormalizeAddress(address)
	snap := c.current.Load()
	entry, ok := snap.entries[snapshotKey(normalized, kind)]
	if !ok {
		return nil, shared.ErrTenantNotFound
	}
	return entry, nil
}

// Refresh reloads the full binding set and swaps the snapshot atomically.
// Concurrent resolves observe either the old or the new generation.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.rebuild(ctx)
}

// rebuild loads bindings and profiles and installs a new snapshot.
// Callers must hold refreshMu.
func (c *Cache) rebuild(ctx context.Context) error {
	bindings, err := c.bindings.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active bindings: %w", err)
	}

	tenantIDs := make([]uuid.UUID, 0, len(bindings))
	seen := make(map[uuid.UUID]struct{}, len(bindings))
	for _, b := range bindings {
		if _, ok := seen[b.TenantID]; !ok {
			seen[b.TenantID] = struct{}{}
			tenantIDs = append(tenantIDs, b.TenantID)
		}
	}

	profiles, err := c.profiles.FindByIDs(ctx, tenantIDs)
	if err != nil {
		return fmt.Errorf("loading tenant profiles: %w", err)
	}

	entries := make(map[string]*Entry, len(bindings))
	for _, b := range bindings {
		profile, ok := profiles[b.TenantID]
		if !ok {
			// A binding without a profile is a provisioning gap; skip it so
			// resolution fails closed instead of serving a partial tenant.
			c.logger.Warn("binding references missing tenant profile",
				zap.String("address", b.ChannelAddress),
				zap.String("kind", b.ChannelKind.String()),
				zap.String("tenant_id", b.TenantID.String()),
			)
			continue
		}
		entries[snapshotKey(b.ChannelAddress, b.ChannelKind)] = &Entry{Binding: b, Profile: profile}
	}

	c.current.Store(&snapshot{entries: entries, builtAt: time.Now()})
	c.logger.Info("directory snapshot rebuilt", zap.Int("entries", len(entries)))
	return nil
}

// Register binds an address to a tenant and makes it resolvable before
// returning. Privileged: callers are gated by the admin capability at the
// HTTP edge, never by tenants acting on their own bindings.
func (c *Cache) Register(ctx context.Context, address string, kind directory.ChannelKind, tenantID uuid.UUID) (*directory.TenantBinding, error) {
	binding, err := directory.NewTenantBinding(address, kind, tenantID)
	if err != nil {
		return nil, err
	}

	if _, err := c.profiles.FindByID(ctx, tenantID); err != nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Cannot bind an address to an unknown tenant")
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if err := c.bindings.Save(ctx, binding); err != nil {
		return nil, err
	}
	if err := c.rebuild(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("channel address registered",
		zap.String("address", binding.ChannelAddress),
		zap.String("kind", kind.String()),
		zap.String("tenant_id", tenantID.String()),
	)
	return binding, nil
}

// Release retires the active binding for (address, kind) and removes it from
// the snapshot before returning.
func (c *Cache) Release(ctx context.Context, address string, kind directory.ChannelKind) error {
	normalized := directory.NormalizeAddress(address)

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if err := c.bindings.Release(ctx, normalized, kind); err != nil {
		return err
	}
	if err := c.rebuild(ctx); err != nil {
		return err
	}

	c.logger.Info("channel address released",
		zap.String("address", normalized),
		zap.String("kind", kind.String()),
	)
	return nil
}

// Entries returns the current snapshot's entries for introspection
func (c *Cache) Entries() []*Entry {
	snap := c.current.Load()
	out := make([]*Entry, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, e)
	}
	return out
}

// BuiltAt returns when the current snapshot was installed
func (c *Cache) BuiltAt() time.Time {
	return c.current.Load().builtAt
}

// RunPeriodicRefresh refreshes the snapshot on a timer until ctx is done.
// Register/Release already update the snapshot synchronously; the timer only
// picks up out-of-band writes to the persistent store.
func (c *Cache) RunPeriodicRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("periodic directory refresh failed", zap.Error(err))
			}
		}
	}
}
