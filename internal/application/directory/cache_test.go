package directory

import (
	"context"
	"sync"
	"testing"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memBindingRepo is an in-memory BindingRepository
type memBindingRepo struct {
	mu       sync.Mutex
	bindings map[string]*directory.TenantBinding
}

func newMemBindingRepo() *memBindingRepo {
	return &memBindingRepo{bindings: make(map[string]*directory.TenantBinding)}
}

func bindingKey(address string, kind directory.ChannelKind) string {
	return address + "|" + string(kind)
}

func (r *memBindingRepo) Save(ctx context.Context, binding *directory.TenantBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bindingKey(binding.ChannelAddress, binding.ChannelKind)
	if existing, ok := r.bindings[key]; ok && existing.IsActive() {
		return shared.ErrAlreadyExists
	}
	r.bindings[key] = binding
	return nil
}

func (r *memBindingRepo) FindActive(ctx context.Context, address string, kind directory.ChannelKind) (*directory.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[bindingKey(address, kind)]
	if !ok || !b.IsActive() {
		return nil, shared.ErrNotFound
	}
	return b, nil
}

func (r *memBindingRepo) ListActive(ctx context.Context) ([]*directory.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*directory.TenantBinding
	for _, b := range r.bindings {
		if b.IsActive() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memBindingRepo) Release(ctx context.Context, address string, kind directory.ChannelKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[bindingKey(address, kind)]
	if !ok || !b.IsActive() {
		return shared.ErrNotFound
	}
	return b.Release()
}

// memProfileRepo is an in-memory TenantProfileRepository
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*directory.TenantProfile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[uuid.UUID]*directory.TenantProfile)}
}

func (r *memProfileRepo) add(p *directory.TenantProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.TenantID] = p
}

func (r *memProfileRepo) FindByIDs(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]*directory.TenantProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*directory.TenantProfile, len(tenantIDs))
	for _, id := range tenantIDs {
		if p, ok := r.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *memProfileRepo) FindByID(ctx context.Context, tenantID uuid.UUID) (*directory.TenantProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func newTestCache(t *testing.T) (*Cache, *memBindingRepo, *memProfileRepo) {
	t.Helper()
	bindings := newMemBindingRepo()
	profiles := newMemProfileRepo()
	return NewCache(bindings, profiles, zap.NewNop()), bindings, profiles
}

func activeProfile(tenantID uuid.UUID) *directory.TenantProfile {
	return &directory.TenantProfile{
		TenantID:    tenantID,
		DisplayName: "Chez Test",
		PlanID:      "pro",
		Status:      directory.TenantStatusActive,
		Locale:      "fr-FR",
	}
}

func TestCache_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown address fails closed", func(t *testing.T) {
		cache, _, _ := newTestCache(t)
		require.NoError(t, cache.Refresh(ctx))

		_, err := cache.Resolve("+33939240269", directory.ChannelVoice)
		assert.ErrorIs(t, err, shared.ErrTenantNotFound)
	})

	t.Run("resolves through normalization", func(t *testing.T) {
		cache, _, profiles := newTestCache(t)
		tenantID := uuid.New()
		profiles.add(activeProfile(tenantID))

		_, err := cache.Register(ctx, "+33939240269", directory.ChannelVoice, tenantID)
		require.NoError(t, err)

		// Provider formatting variants resolve to the same binding
		for _, addr := range []string{"+33939240269", "+33 9 39 24 02 69", "0033939240269"} {
			entry, err := cache.Resolve(addr, directory.ChannelVoice)
			require.NoError(t, err, addr)
			assert.Equal(t, tenantID, entry.Binding.TenantID)
		}
	})

	t.Run("voice and messaging bindings on one number are independent", func(t *testing.T) {
		cache, _, profiles := newTestCache(t)
		voiceTenant := uuid.New()
		messagingTenant := uuid.New()
		profiles.add(activeProfile(voiceTenant))
		profiles.add(activeProfile(messagingTenant))

		_, err := cache.Register(ctx, "+33939240269", directory.ChannelVoice, voiceTenant)
		require.NoError(t, err)
		_, err = cache.Register(ctx, "+33939240269", directory.ChannelMessaging, messagingTenant)
		require.NoError(t, err)

		voiceEntry, err := cache.Resolve("+33939240269", directory.ChannelVoice)
		require.NoError(t, err)
		messagingEntry, err := cache.Resolve("+33939240269", directory.ChannelMessaging)
		require.NoError(t, err)

		assert.Equal(t, voiceTenant, voiceEntry.Binding.TenantID)
		assert.Equal(t, messagingTenant, messagingEntry.Binding.TenantID)
	})
}

func TestCache_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("registered address resolves immediately", func(t *testing.T) {
		cache, _, profiles := newTestCache(t)
		tenantID := uuid.New()
		profiles.add(activeProfile(tenantID))

		_, err := cache.Register(ctx, "widget-key-1", directory.ChannelWeb, tenantID)
		require.NoError(t, err)

		entry, err := cache.Resolve("widget-key-1", directory.ChannelWeb)
		require.NoError(t, err)
		assert.Equal(t, tenantID, entry.Binding.TenantID)
	})

	t.Run("rejects unknown tenant", func(t *testing.T) {
		cache, _, _ := newTestCache(t)

		_, err := cache.Register(ctx, "+33939240269", directory.ChannelVoice, uuid.New())
		assert.Error(t, err)
	})

	t.Run("rejects second active binding for same address and kind", func(t *testing.T) {
		cache, _, profiles := newTestCache(t)
		first := uuid.New()
		second := uuid.New()
		profiles.add(activeProfile(first))
		profiles.add(activeProfile(second))

		_, err := cache.Register(ctx, "+33939240269", directory.ChannelVoice, first)
		require.NoError(t, err)

		_, err = cache.Register(ctx, "+33939240269", directory.ChannelVoice, second)
		assert.Error(t, err)

		// The original owner still resolves
		entry, err := cache.Resolve("+33939240269", directory.ChannelVoice)
		require.NoError(t, err)
		assert.Equal(t, first, entry.Binding.TenantID)
	})
}

func TestCache_Release(t *testing.T) {
	ctx := context.Background()
	cache, _, profiles := newTestCache(t)
	tenantID := uuid.New()
	profiles.add(activeProfile(tenantID))

	_, err := cache.Register(ctx, "+33939240269", directory.ChannelVoice, tenantID)
	require.NoError(t, err)

	require.NoError(t, cache.Release(ctx, "+33939240269", directory.ChannelVoice))

	// Released addresses fail closed immediately
	_, err = cache.Resolve("+33939240269", directory.ChannelVoice)
	assert.ErrorIs(t, err, shared.ErrTenantNotFound)

	t.Run("releasing an unknown address errors", func(t *testing.T) {
		err := cache.Release(ctx, "+10000000000", directory.ChannelVoice)
		assert.Error(t, err)
	})
}

func TestCache_RefreshSkipsOrphanedBindings(t *testing.T) {
	ctx := context.Background()
	cache, bindings, profiles := newTestCache(t)

	known := uuid.New()
	profiles.add(activeProfile(known))

	orphanBinding, err := directory.NewTenantBinding("+15550000001", directory.ChannelVoice, uuid.New())
	require.NoError(t, err)
	require.NoError(t, bindings.Save(ctx, orphanBinding))

	knownBinding, err := directory.NewTenantBinding("+15550000002", directory.ChannelVoice, known)
	require.NoError(t, err)
	require.NoError(t, bindings.Save(ctx, knownBinding))

	require.NoError(t, cache.Refresh(ctx))

	// The orphan must not resolve to anything
	_, err = cache.Resolve("+15550000001", directory.ChannelVoice)
	assert.ErrorIs(t, err, shared.ErrTenantNotFound)

	entry, err := cache.Resolve("+15550000002", directory.ChannelVoice)
	require.NoError(t, err)
	assert.Equal(t, known, entry.Binding.TenantID)
}

func TestCache_ConcurrentResolveDuringRefresh(t *testing.T) {
	ctx := context.Background()
	cache, _, profiles := newTestCache(t)
	tenantID := uuid.New()
	profiles.add(activeProfile(tenantID))

	_, err := cache.Register(ctx, "+33939240269", directory.ChannelVoice, tenantID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers hammer Resolve while refreshes swap generations underneath
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				entry, err := cache.Resolve("+33939240269", directory.ChannelVoice)
				assert.NoError(t, err)
				assert.Equal(t, tenantID, entry.Binding.TenantID)
			}
		}()
	}

	for i := 0; i < 50; i++ {
		require.NoError(t, cache.Refresh(ctx))
	}
	close(stop)
	wg.Wait()
}
