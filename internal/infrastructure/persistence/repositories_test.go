package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewSQLiteDatabase()
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	return db
}

func TestGormUsageRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormUsageRepository(db.DB)
	period := billing.PeriodKey("2026-09")

	t.Run("missing counter reads as zero", func(t *testing.T) {
		counter, err := repo.Get(ctx, uuid.New(), billing.ResourceMessagingTurns, period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), counter.Used)
	})

	t.Run("increment creates then accumulates", func(t *testing.T) {
		tenantID := uuid.New()

		used, err := repo.Increment(ctx, tenantID, billing.ResourceAIInteractions, period, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), used)

		used, err = repo.Increment(ctx, tenantID, billing.ResourceAIInteractions, period, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(6), used)

		counter, err := repo.Get(ctx, tenantID, billing.ResourceAIInteractions, period)
		require.NoError(t, err)
		assert.Equal(t, int64(6), counter.Used)
	})

	t.Run("periods accumulate independently", func(t *testing.T) {
		tenantID := uuid.New()

		_, err := repo.Increment(ctx, tenantID, billing.ResourceWebTurns, "2026-09", 3)
		require.NoError(t, err)
		used, err := repo.Increment(ctx, tenantID, billing.ResourceWebTurns, "2026-10", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), used, "a new period starts its own row at zero")

		counter, err := repo.Get(ctx, tenantID, billing.ResourceWebTurns, "2026-09")
		require.NoError(t, err)
		assert.Equal(t, int64(3), counter.Used)
	})

	t.Run("resources accumulate independently", func(t *testing.T) {
		tenantID := uuid.New()

		_, err := repo.Increment(ctx, tenantID, billing.ResourceTelephoneMinutes, period, 2)
		require.NoError(t, err)
		_, err = repo.Increment(ctx, tenantID, billing.ResourceAIInteractions, period, 7)
		require.NoError(t, err)

		counters, err := repo.ListForTenant(ctx, tenantID, period)
		require.NoError(t, err)
		require.Len(t, counters, 2)

		byResource := make(map[billing.ResourceType]int64)
		for _, c := range counters {
			byResource[c.Resource] = c.Used
		}
		assert.Equal(t, int64(2), byResource[billing.ResourceTelephoneMinutes])
		assert.Equal(t, int64(7), byResource[billing.ResourceAIInteractions])
	})
}

func TestGormBindingRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormBindingRepository(db.DB)

	newBinding := func(t *testing.T, address string, kind directory.ChannelKind) *directory.TenantBinding {
		t.Helper()
		b, err := directory.NewTenantBinding(address, kind, uuid.New())
		require.NoError(t, err)
		return b
	}

	t.Run("save and find roundtrip", func(t *testing.T) {
		b := newBinding(t, "+33939240001", directory.ChannelVoice)
		require.NoError(t, repo.Save(ctx, b))

		found, err := repo.FindActive(ctx, b.ChannelAddress, directory.ChannelVoice)
		require.NoError(t, err)
		assert.Equal(t, b.ID, found.ID)
		assert.Equal(t, b.TenantID, found.TenantID)
		assert.True(t, found.IsActive())
	})

	t.Run("second active binding for the same address and kind is rejected", func(t *testing.T) {
		first := newBinding(t, "+33939240002", directory.ChannelVoice)
		require.NoError(t, repo.Save(ctx, first))

		second := newBinding(t, "+33939240002", directory.ChannelVoice)
		err := repo.Save(ctx, second)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)

		// The original owner still resolves.
		found, err := repo.FindActive(ctx, "+33939240002", directory.ChannelVoice)
		require.NoError(t, err)
		assert.Equal(t, first.TenantID, found.TenantID)
	})

	t.Run("same address may carry one binding per kind", func(t *testing.T) {
		voice := newBinding(t, "+33939240003", directory.ChannelVoice)
		messaging := newBinding(t, "+33939240003", directory.ChannelMessaging)
		require.NoError(t, repo.Save(ctx, voice))
		require.NoError(t, repo.Save(ctx, messaging))
	})

	t.Run("release frees the address for rebinding", func(t *testing.T) {
		first := newBinding(t, "+33939240004", directory.ChannelVoice)
		require.NoError(t, repo.Save(ctx, first))

		require.NoError(t, repo.Release(ctx, "+33939240004", directory.ChannelVoice))
		_, err := repo.FindActive(ctx, "+33939240004", directory.ChannelVoice)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		second := newBinding(t, "+33939240004", directory.ChannelVoice)
		require.NoError(t, repo.Save(ctx, second))
	})

	t.Run("releasing an unbound address errors", func(t *testing.T) {
		err := repo.Release(ctx, "+33999999999", directory.ChannelVoice)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("list active excludes released bindings", func(t *testing.T) {
		kept := newBinding(t, "+33939240005", directory.ChannelWeb)
		dropped := newBinding(t, "+33939240006", directory.ChannelWeb)
		require.NoError(t, repo.Save(ctx, kept))
		require.NoError(t, repo.Save(ctx, dropped))
		require.NoError(t, repo.Release(ctx, dropped.ChannelAddress, directory.ChannelWeb))

		active, err := repo.ListActive(ctx)
		require.NoError(t, err)

		ids := make(map[uuid.UUID]bool)
		for _, b := range active {
			ids[b.ID] = true
		}
		assert.True(t, ids[kept.ID])
		assert.False(t, ids[dropped.ID])
	})
}

func TestGormPolicyRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewGormPolicyRepository(db.DB)

	seed := func(t *testing.T, planID string, resource billing.ResourceType, limit int64, hardCap bool, unitCost string, overageHardLimit int64) {
		t.Helper()
		require.NoError(t, db.DB.Create(&QuotaPolicyModel{
			ID:               uuid.New(),
			PlanID:           planID,
			Resource:         string(resource),
			ResourceLimit:    limit,
			HardCap:          hardCap,
			OverageUnitCost:  unitCost,
			OverageHardLimit: overageHardLimit,
		}).Error)
	}

	t.Run("loads configured limits for a plan", func(t *testing.T) {
		seed(t, "starter", billing.ResourceMessagingTurns, 100, true, "0", 0)
		seed(t, "starter", billing.ResourceAIInteractions, 500, false, "0.05", 200)

		policy, err := repo.FindForPlan(ctx, "starter", false)
		require.NoError(t, err)

		messaging := policy.LimitFor(billing.ResourceMessagingTurns)
		assert.Equal(t, int64(100), messaging.Limit)
		assert.True(t, messaging.HardCap)

		ai := policy.LimitFor(billing.ResourceAIInteractions)
		assert.Equal(t, int64(500), ai.Limit)
		assert.False(t, ai.HardCap)
		assert.True(t, ai.OverageUnitCost.Equal(decimal.RequireFromString("0.05")))
		assert.Equal(t, int64(200), ai.OverageHardLimit)

		// A resource without a row stays unlimited.
		assert.True(t, policy.LimitFor(billing.ResourceWebTurns).IsUnlimited())
	})

	t.Run("unknown plan resolves to an empty policy", func(t *testing.T) {
		policy, err := repo.FindForPlan(ctx, "no-such-plan", false)
		require.NoError(t, err)
		assert.True(t, policy.LimitFor(billing.ResourceMessagingTurns).IsUnlimited())
	})

	t.Run("trial upgrades soft caps to hard", func(t *testing.T) {
		seed(t, "trial-plan", billing.ResourceAIInteractions, 50, false, "0.05", 0)

		policy, err := repo.FindForPlan(ctx, "trial-plan", true)
		require.NoError(t, err)
		assert.True(t, policy.LimitFor(billing.ResourceAIInteractions).HardCap)
	})
}

func TestGormOverageSink(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	sink := NewGormOverageSink(db.DB)

	tenantID := uuid.New()
	event := billing.OverageEvent{
		TenantID:   tenantID,
		Resource:   billing.ResourceAIInteractions,
		Period:     "2026-09",
		Amount:     3,
		UnitCost:   decimal.RequireFromString("0.05"),
		TotalCost:  decimal.RequireFromString("0.15"),
		RecordedAt: time.Now().UTC(),
	}
	require.NoError(t, sink.Publish(ctx, event))

	var models []OverageEventModel
	require.NoError(t, db.DB.Where("tenant_id = ?", tenantID).Find(&models).Error)
	require.Len(t, models, 1)
	assert.Equal(t, string(billing.ResourceAIInteractions), models[0].Resource)
	assert.Equal(t, int64(3), models[0].Amount)
	assert.Equal(t, "0.05", models[0].UnitCost)
	assert.Equal(t, "0.15", models[0].TotalCost)
	assert.NotEqual(t, uuid.Nil, models[0].ID)
}
