package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/session"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/concierge/gateway/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const shardCount = 32

// ManagerConfig holds session manager configuration
type ManagerConfig struct {
	// IdleTimeout retires sessions with no activity within the window
	IdleTimeout time.Duration
	// EvictInterval is how often the background sweep runs
	EvictInterval time.Duration
}

// DefaultManagerConfig returns session manager defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTimeout:   10 * time.Minute,
		EvictInterval: time.Minute,
	}
}

// entry pairs a session with its own lock so turns for one session are
// serialized in delivery order without a global lock across sessions.
type entry struct {
	mu      sync.Mutex
	session *session.Session
}

// shard is one slice of the session key space
type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Manager owns all in-progress conversation sessions. Sessions for
// different keys never contend: the store is sharded by key hash and each
// session carries its own lock.
type Manager struct {
	config  ManagerConfig
	shards  [shardCount]*shard
	logger  *zap.Logger
	metrics *telemetry.GatewayMetrics
	clock   func() time.Time
}

// NewManager creates a session manager
func NewManager(config ManagerConfig, logger *zap.Logger, metrics *telemetry.GatewayMetrics) *Manager {
	m := &Manager{
		config:  config,
		logger:  logger,
		metrics: metrics,
		clock:   time.Now,
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return m
}

// WithClock overrides the clock, for expiry tests
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

func (m *Manager) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the live session for a key, creating one in GREETING
// on the first turn. A key whose previous session ended gets a brand-new
// session. A live session bound to a different tenant is a SessionConflict:
// the request is fatal and never silently reconciled.
func (m *Manager) GetOrCreate(ctx context.Context, key string, tenantID uuid.UUID, kind directory.ChannelKind) (*session.Session, error) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		if !e.session.State.Terminal() {
			if !e.session.BelongsTo(tenantID) {
				return nil, shared.ErrSessionConflict
			}
			return e.session, nil
		}
		// Terminal session under a reused provider key: drop it and start over.
		delete(s.entries, key)
	}

	created, err := session.New(key, tenantID, kind)
	if err != nil {
		return nil, err
	}
	s.entries[key] = &entry{session: created}

	if m.metrics != nil {
		m.metrics.RecordSessionCreated(ctx, kind.String())
	}
	m.logger.Debug("session created",
		zap.String("session_key", key),
		zap.String("tenant_id", tenantID.String()),
		zap.String("channel_kind", kind.String()),
	)
	return created, nil
}

// Advance applies a turn outcome to a session under its own lock and
// returns the next state. Turns for one session apply in delivery order;
// unrelated sessions proceed in parallel.
func (m *Manager) Advance(key string, tenantID uuid.UUID, outcome session.TurnOutcome) (session.State, error) {
	var next session.State
	err := m.Do(key, tenantID, func(s *session.Session) error {
		var advErr error
		next, advErr = s.Advance(outcome)
		return advErr
	})
	return next, err
}

// Do runs fn while holding the session's turn lock, serializing whole turns
// (engine call included) for one session without blocking any other.
func (m *Manager) Do(key string, tenantID uuid.UUID, fn func(*session.Session) error) error {
	e, err := m.lookup(key, tenantID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

func (m *Manager) lookup(key string, tenantID uuid.UUID) (*entry, error) {
	s := m.shardFor(key)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, shared.ErrNotFound
	}
	if !e.session.BelongsTo(tenantID) {
		return nil, shared.ErrSessionConflict
	}
	return e, nil
}

// Get returns the session for a key if one exists, for introspection
func (m *Manager) Get(key string) (*session.Session, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// EvictExpired retires and removes sessions idle beyond the configured
// window, returning how many were reclaimed. The sweep never waits on a
// busy session: an entry whose turn lock is held is mid-turn, so it cannot
// be idle and is skipped until the next pass. The shard lock is only held
// to snapshot entries and to delete, never across a turn lock.
func (m *Manager) EvictExpired(ctx context.Context) int {
	now := m.clock()
	evicted := 0

	for _, s := range m.shards {
		s.mu.RLock()
		candidates := make(map[string]*entry, len(s.entries))
		for key, e := range s.entries {
			candidates[key] = e
		}
		s.mu.RUnlock()

		for key, e := range candidates {
			if !e.mu.TryLock() {
				continue
			}
			expired := e.session.State.Terminal() || e.session.IdleSince(now) > m.config.IdleTimeout
			if expired {
				e.session.Expire()
			}
			e.mu.Unlock()
			if !expired {
				continue
			}

			s.mu.Lock()
			// The key may carry a fresh session by now; only remove the
			// entry that was actually expired.
			if s.entries[key] == e {
				delete(s.entries, key)
				evicted++
			}
			s.mu.Unlock()
		}
	}

	if evicted > 0 {
		if m.metrics != nil {
			m.metrics.RecordSessionsEvicted(ctx, int64(evicted))
		}
		m.logger.Debug("expired sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

// Len returns the number of live sessions, for sizing and monitoring
func (m *Manager) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// RunEvictionLoop sweeps for expired sessions until ctx is done
func (m *Manager) RunEvictionLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.EvictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictExpired(ctx)
		}
	}
}
