package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	admissionapp "github.com/concierge/gateway/internal/application/admission"
	directoryapp "github.com/concierge/gateway/internal/application/directory"
	sessionapp "github.com/concierge/gateway/internal/application/session"
	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/session"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/concierge/gateway/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBindingRepo is an in-memory directory.BindingRepository
type stubBindingRepo struct {
	mu       sync.Mutex
	bindings map[string]*directory.TenantBinding
}

func newStubBindingRepo() *stubBindingRepo {
	return &stubBindingRepo{bindings: make(map[string]*directory.TenantBinding)}
}

func (r *stubBindingRepo) key(address string, kind directory.ChannelKind) string {
	return address + "|" + string(kind)
}

func (r *stubBindingRepo) Save(ctx context.Context, b *directory.TenantBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(b.ChannelAddress, b.ChannelKind)
	if existing, ok := r.bindings[key]; ok && existing.IsActive() {
		return shared.ErrAlreadyExists
	}
	r.bindings[key] = b
	return nil
}

func (r *stubBindingRepo) FindActive(ctx context.Context, address string, kind directory.ChannelKind) (*directory.TenantBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[r.key(address, kind)]
	if !ok || !b.IsActive() {
		return nil, shared.ErrNotFound
	}
	return b, nil
}

func (r *stubBindingRepo) ListActive(ctx context.Context) ([]*directory.TenantBinding, error) {
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

func (r *stubBindingRepo) Release(ctx context.Context, address string, kind directory.ChannelKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[r.key(address, kind)]
	if !ok || !b.IsActive() {
		return shared.ErrNotFound
	}
	return b.Release()
}

// stubProfileRepo is an in-memory directory.TenantProfileRepository
type stubProfileRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*directory.TenantProfile
}

func newStubProfileRepo() *stubProfileRepo {
	return &stubProfileRepo{profiles: make(map[uuid.UUID]*directory.TenantProfile)}
}

func (r *stubProfileRepo) add(p *directory.TenantProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.TenantID] = p
}

func (r *stubProfileRepo) FindByIDs(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]*directory.TenantProfile, error) {
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

func (r *stubProfileRepo) FindByID(ctx context.Context, tenantID uuid.UUID) (*directory.TenantProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

// stubUsageRepo is an in-memory billing.UsageRepository
type stubUsageRepo struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newStubUsageRepo() *stubUsageRepo {
	return &stubUsageRepo{counters: make(map[string]int64)}
}

func (r *stubUsageRepo) key(tenantID uuid.UUID, resource billing.ResourceType, period billing.PeriodKey) string {
	return tenantID.String() + "|" + string(resource) + "|" + string(period)
}

func (r *stubUsageRepo) Get(ctx context.Context, tenantID uuid.UUID, resource billing.ResourceType, period billing.PeriodKey) (*billing.UsageCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &billing.UsageCounter{
		TenantID: tenantID,
		Period:   period,
		Resource: resource,
		Used:     r.counters[r.key(tenantID, resource, period)],
	}, nil
}

func (r *stubUsageRepo) Increment(ctx context.Context, tenantID uuid.UUID, resource billing.ResourceType, period billing.PeriodKey, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(tenantID, resource, period)
	r.counters[key] += amount
	return r.counters[key], nil
}

func (r *stubUsageRepo) ListForTenant(ctx context.Context, tenantID uuid.UUID, period billing.PeriodKey) ([]*billing.UsageCounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.UsageCounter
	for _, resource := range billing.AllResourceTypes() {
		if used, ok := r.counters[r.key(tenantID, resource, period)]; ok {
			out = append(out, &billing.UsageCounter{TenantID: tenantID, Period: period, Resource: resource, Used: used})
		}
	}
	return out, nil
}

// stubPolicyRepo serves a fixed limit set for every plan
type stubPolicyRepo struct {
	limits map[billing.ResourceType]billing.ResourceLimit
}

func (r *stubPolicyRepo) FindForPlan(ctx context.Context, planID string, trial bool) (*billing.QuotaPolicy, error) {
	policy, err := billing.NewQuotaPolicy(planID, trial)
	if err != nil {
		return nil, err
	}
	for resource, limit := range r.limits {
		policy.WithLimit(resource, limit)
	}
	return policy, nil
}

// stubOverageSink drops overage events
type stubOverageSink struct{}

func (s *stubOverageSink) Publish(ctx context.Context, event billing.OverageEvent) error {
	return nil
}

// scriptedEngine returns a configurable reply and records every call
type scriptedEngine struct {
	mu    sync.Mutex
	reply EngineReply
	err   error
	calls []EngineTurn
}

func (e *scriptedEngine) Respond(ctx context.Context, turn EngineTurn) (EngineReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, turn)
	if e.err != nil {
		return EngineReply{}, e.err
	}
	return e.reply, nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *scriptedEngine) set(reply EngineReply, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reply = reply
	e.err = err
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	engine     *scriptedEngine
	usage      *stubUsageRepo
	profiles   *stubProfileRepo
	tenantID   uuid.UUID
}

func newDispatcherFixture(t *testing.T, limits map[billing.ResourceType]billing.ResourceLimit) *dispatcherFixture {
	t.Helper()
	ctx := context.Background()

	bindings := newStubBindingRepo()
	profiles := newStubProfileRepo()
	dir := directoryapp.NewCache(bindings, profiles, zap.NewNop())

	tenantID := uuid.New()
	profiles.add(&directory.TenantProfile{
		TenantID:       tenantID,
		DisplayName:    "Le Bistro",
		PlanID:         "pro",
		Status:         directory.TenantStatusActive,
		TransferNumber: "+33123456789",
		Greeting:       "Bonjour, Le Bistro à votre écoute.",
		Locale:         "fr-FR",
	})
	_, err := dir.Register(ctx, "+33939240269", directory.ChannelVoice, tenantID)
	require.NoError(t, err)
	_, err = dir.Register(ctx, "+33939240269", directory.ChannelMessaging, tenantID)
	require.NoError(t, err)

	usage := newStubUsageRepo()
	admission := admissionapp.NewController(usage, &stubPolicyRepo{limits: limits}, &stubOverageSink{}, zap.NewNop(), nil)

	sessions := sessionapp.NewManager(sessionapp.DefaultManagerConfig(), zap.NewNop(), nil)
	engine := &scriptedEngine{reply: EngineReply{Text: "Bien sûr, que puis-je faire pour vous ?"}}

	dedup := cache.NewInMemoryDedupStore()
	t.Cleanup(func() { _ = dedup.Close() })

	d := NewDispatcher(DefaultDispatcherConfig(), dir, admission, sessions, engine, dedup, zap.NewNop(), nil)
	return &dispatcherFixture{
		dispatcher: d,
		engine:     engine,
		usage:      usage,
		profiles:   profiles,
		tenantID:   tenantID,
	}
}

func voiceTurn(eventID, callID, message string) InboundTurn {
	return InboundTurn{
		ProviderEventID: eventID,
		SessionKey:      callID,
		Address:         "+33 9 39 24 02 69",
		Kind:            directory.ChannelVoice,
		Message:         message,
	}
}

func TestDispatcher_HandleTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("replies and charges one unit per resource", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)

		result, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "Quels sont vos horaires ?"))
		require.NoError(t, err)

		assert.Equal(t, ActionReply, result.Action)
		assert.Equal(t, "Bien sûr, que puis-je faire pour vous ?", result.Reply)
		assert.Equal(t, f.tenantID, result.TenantID)
		assert.NotEqual(t, uuid.Nil, result.SessionID)
		assert.Equal(t, session.StateActive, result.SessionState)

		counters, _, err := f.dispatcher.admission.Usage(ctx, f.tenantID)
		require.NoError(t, err)
		byResource := make(map[billing.ResourceType]int64)
		for _, c := range counters {
			byResource[c.Resource] = c.Used
		}
		assert.Equal(t, int64(1), byResource[billing.ResourceTelephoneMinutes])
		assert.Equal(t, int64(1), byResource[billing.ResourceAIInteractions])
	})

	t.Run("redelivered event is acknowledged without effects", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)

		first, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.NoError(t, err)
		require.Equal(t, ActionReply, first.Action)

		second, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.NoError(t, err)
		assert.Equal(t, ActionDuplicate, second.Action)
		assert.Empty(t, second.Reply)

		assert.Equal(t, 1, f.engine.callCount(), "a redelivery must not reach the engine")

		counters, _, err := f.dispatcher.admission.Usage(ctx, f.tenantID)
		require.NoError(t, err)
		for _, c := range counters {
			assert.Equal(t, int64(1), c.Used, "resource %s charged more than once", c.Resource)
		}
	})

	t.Run("unknown address refuses service", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)

		turn := voiceTurn("evt-1", "call-1", "bonjour")
		turn.Address = "+33611111111"
		_, err := f.dispatcher.HandleTurn(ctx, turn)
		assert.ErrorIs(t, err, shared.ErrTenantNotFound)
		assert.Equal(t, 0, f.engine.callCount())
	})

	t.Run("suspended tenant is denied before any charge", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)
		f.profiles.add(&directory.TenantProfile{
			TenantID: f.tenantID,
			PlanID:   "pro",
			Status:   directory.TenantStatusSuspended,
		})
		require.NoError(t, f.dispatcher.cache.Refresh(ctx))

		result, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.NoError(t, err)
		assert.Equal(t, ActionDeny, result.Action)
		assert.NotEmpty(t, result.Reply)
		assert.Equal(t, 0, f.engine.callCount())

		counters, _, err := f.dispatcher.admission.Usage(ctx, f.tenantID)
		require.NoError(t, err)
		assert.Empty(t, counters)
	})

	t.Run("quota denial stops the turn before the engine", func(t *testing.T) {
		f := newDispatcherFixture(t, map[billing.ResourceType]billing.ResourceLimit{
			billing.ResourceTelephoneMinutes: {Limit: 1, HardCap: true},
		})

		first, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.NoError(t, err)
		require.Equal(t, ActionReply, first.Action)

		second, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-2", "call-1", "et ensuite"))
		require.NoError(t, err)
		assert.Equal(t, ActionDeny, second.Action)
		assert.Equal(t, 1, f.engine.callCount())
	})

	t.Run("transfer directive bridges to the tenant number", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)
		f.engine.set(EngineReply{Text: "Je vous transfère.", Directive: DirectiveTransfer}, nil)

		result, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "je veux réserver"))
		require.NoError(t, err)
		assert.Equal(t, ActionTransfer, result.Action)
		assert.Equal(t, "+33123456789", result.TransferNumber)
		assert.Equal(t, session.StateTransferRequested, result.SessionState)
	})

	t.Run("closing phrase ends the session", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)
		f.engine.set(EngineReply{Text: "Merci de votre appel."}, nil)

		result, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "merci, au revoir"))
		require.NoError(t, err)
		assert.Equal(t, ActionEnd, result.Action)
		assert.Equal(t, session.StateEnded, result.SessionState)

		// The next contact on the same call ID gets a fresh session.
		f.engine.set(EngineReply{Text: "Bonjour à nouveau."}, nil)
		next, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-2", "call-1", "allô ?"))
		require.NoError(t, err)
		assert.Equal(t, ActionReply, next.Action)
		assert.NotEqual(t, result.SessionID, next.SessionID)
	})

	t.Run("engine failure releases the dedup slot for the retry", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)
		f.engine.set(EngineReply{}, errors.New("upstream 503"))

		_, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.Error(t, err)

		// The provider retries the same event; it must be processed, not
		// swallowed as a duplicate.
		f.engine.set(EngineReply{Text: "Bonjour !"}, nil)
		result, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.NoError(t, err)
		assert.Equal(t, ActionReply, result.Action)
		assert.Equal(t, 2, f.engine.callCount())
	})

	t.Run("downstream failure carries the fallback text", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)
		f.engine.set(EngineReply{}, shared.ErrDownstreamUnavailable)

		result, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.ErrorIs(t, err, shared.ErrDownstreamUnavailable)
		assert.Equal(t, DefaultDispatcherConfig().UnavailableMessage, result.Reply)
	})

	t.Run("messaging and voice meter separate resources", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)

		_, err := f.dispatcher.HandleTurn(ctx, voiceTurn("evt-1", "call-1", "bonjour"))
		require.NoError(t, err)

		_, err = f.dispatcher.HandleTurn(ctx, InboundTurn{
			ProviderEventID: "msg-1",
			SessionKey:      "+33600000001>+33939240269",
			Address:         "+33939240269",
			Kind:            directory.ChannelMessaging,
			Message:         "bonjour",
		})
		require.NoError(t, err)

		counters, _, err := f.dispatcher.admission.Usage(ctx, f.tenantID)
		require.NoError(t, err)
		byResource := make(map[billing.ResourceType]int64)
		for _, c := range counters {
			byResource[c.Resource] = c.Used
		}
		assert.Equal(t, int64(1), byResource[billing.ResourceTelephoneMinutes])
		assert.Equal(t, int64(1), byResource[billing.ResourceMessagingTurns])
		assert.Equal(t, int64(2), byResource[billing.ResourceAIInteractions])
	})

	t.Run("invalid channel kind is rejected", func(t *testing.T) {
		f := newDispatcherFixture(t, nil)

		_, err := f.dispatcher.HandleTurn(ctx, InboundTurn{
			ProviderEventID: "evt-1",
			SessionKey:      "call-1",
			Address:         "+33939240269",
			Kind:            directory.ChannelKind("carrier-pigeon"),
		})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
