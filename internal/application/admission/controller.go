package admission

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/concierge/gateway/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Controller decides whether a tenant may consume a unit of a metered
// resource. The check-then-increment must be indivisible per
// (tenant, resource, period): concurrent turns racing the same counter must
// never both pass a boundary only one should pass. The controller serializes
// those races with a per-key mutex; the underlying store's increment is
// additionally atomic, keeping counters monotonic even across processes.
type Controller struct {
	usage   billing.UsageRepository
	policy  billing.PolicyRepository
	overage billing.OverageSink
	logger  *zap.Logger
	metrics *telemetry.GatewayMetrics
	clock   func() time.Time

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	maxLockKeys int
}

// defaultMaxLockKeys bounds the per-key lock map before past-period entries
// are pruned
const defaultMaxLockKeys = 4096

// NewController creates an admission controller
func NewController(
	usage billing.UsageRepository,
	policy billing.PolicyRepository,
	overage billing.OverageSink,
	logger *zap.Logger,
	metrics *telemetry.GatewayMetrics,
) *Controller {
	return &Controller{
		usage:       usage,
		policy:      policy,
		overage:     overage,
		logger:      logger,
		metrics:     metrics,
		clock:       time.Now,
		locks:       make(map[string]*sync.Mutex),
		maxLockKeys: defaultMaxLockKeys,
	}
}

// WithClock overrides the clock, for period-rollover tests
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// keyLock returns the mutex guarding one (tenant, resource, period) counter.
// Once the map outgrows maxLockKeys, keys from past periods are dropped:
// the clock never produces a past period key again, so no new contender can
// appear for a pruned lock and holders keep their own pointer.
func (c *Controller) keyLock(key string, period billing.PeriodKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lock, ok := c.locks[key]; ok {
		return lock
	}
	if len(c.locks) >= c.maxLockKeys {
		suffix := "|" + string(period)
		for k := range c.locks {
			if !strings.HasSuffix(k, suffix) {
				delete(c.locks, k)
			}
		}
	}
	lock := &sync.Mutex{}
	c.locks[key] = lock
	return lock
}

// CheckAndReserve admits, denies, or admits-with-overage one reservation of
// amount units. Admission and the counter increment happen under the same
// per-key critical section, so a hard cap of N admits exactly N units no
// matter how many requests race.
func (c *Controller) CheckAndReserve(
	ctx context.Context,
	tenantID uuid.UUID,
	planID string,
	trial bool,
	resource billing.ResourceType,
	amount int64,
) (billing.AdmissionResult, error) {
	if amount <= 0 {
		amount = 1
	}

	period := billing.CurrentPeriod(c.clock())
	result := billing.AdmissionResult{Resource: resource, Period: period}

	policy, err := c.policy.FindForPlan(ctx, planID, trial)
	if err != nil {
		return result, err
	}
	limit := policy.LimitFor(resource)
	result.Limit = limit.Limit

	key := tenantID.String() + "|" + string(resource) + "|" + string(period)
	lock := c.keyLock(key, period)
	lock.Lock()
	defer lock.Unlock()

	counter, err := c.usage.Get(ctx, tenantID, resource, period)
	if err != nil {
		return result, err
	}

	if limit.IsUnlimited() || counter.Used+amount <= limit.Limit {
		used, err := c.usage.Increment(ctx, tenantID, resource, period, amount)
		if err != nil {
			return result, err
		}
		result.Decision = billing.DecisionAdmitted
		result.Used = used
		c.record(ctx, result, tenantID)
		return result, nil
	}

	if limit.HardCap {
		result.Decision = billing.DecisionDenied
		result.Used = counter.Used
		result.Reason = resource.DisplayName() + " quota exhausted"
		c.record(ctx, result, tenantID)
		return result, nil
	}

	// Soft cap converted to a denial once accumulated overage passes the
	// configured bound. Abuse protection, off when the bound is zero.
	overageAfter := counter.Used + amount - limit.Limit
	if limit.OverageHardLimit > 0 && overageAfter > limit.OverageHardLimit {
		result.Decision = billing.DecisionDenied
		result.Used = counter.Used
		result.Reason = resource.DisplayName() + " overage allowance exhausted"
		c.record(ctx, result, tenantID)
		return result, nil
	}

	used, err := c.usage.Increment(ctx, tenantID, resource, period, amount)
	if err != nil {
		return result, err
	}

	result.Decision = billing.DecisionAllowedWithOverage
	result.Used = used
	result.OverageCost = limit.OverageUnitCost.Mul(decimal.NewFromInt(amount))

	event := billing.OverageEvent{
		TenantID:   tenantID,
		Resource:   resource,
		Period:     period,
		Amount:     amount,
		UnitCost:   limit.OverageUnitCost,
		TotalCost:  result.OverageCost,
		RecordedAt: c.clock(),
	}
	if err := c.overage.Publish(ctx, event); err != nil {
		// The reservation already happened; losing the billing event is an
		// operator problem, not the caller's.
		c.logger.Error("failed to publish overage event",
			zap.String("tenant_id", tenantID.String()),
			zap.String("resource", resource.String()),
			zap.Error(err),
		)
	}

	c.record(ctx, result, tenantID)
	return result, nil
}

// Usage returns the tenant's counters for the current period, for support
// and debugging introspection.
func (c *Controller) Usage(ctx context.Context, tenantID uuid.UUID) ([]*billing.UsageCounter, billing.PeriodKey, error) {
	period := billing.CurrentPeriod(c.clock())
	counters, err := c.usage.ListForTenant(ctx, tenantID, period)
	return counters, period, err
}

func (c *Controller) record(ctx context.Context, result billing.AdmissionResult, tenantID uuid.UUID) {
	if c.metrics != nil {
		c.metrics.RecordAdmission(ctx, string(result.Decision), result.Resource.String())
	}
	if result.Decision == billing.DecisionDenied {
		c.logger.Warn("admission denied",
			zap.String("tenant_id", tenantID.String()),
			zap.String("resource", result.Resource.String()),
			zap.Int64("used", result.Used),
			zap.Int64("limit", result.Limit),
		)
	}
}
