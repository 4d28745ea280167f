package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageRepository provides atomic access to per-tenant usage counters
type UsageRepository interface {
	// Get returns the counter for (tenant, resource, period). A missing row
	// is returned as a zero-valued counter, not an error; period rollover is
	// implicit in the key.
	Get(ctx context.Context, tenantID uuid.UUID, resource ResourceType, period PeriodKey) (*UsageCounter, error)

	// Increment atomically adds amount to the counter, creating it at zero
	// first if needed, and returns the new value.
	Increment(ctx context.Context, tenantID uuid.UUID, resource ResourceType, period PeriodKey, amount int64) (int64, error)

	// ListForTenant returns all counters for a tenant in a period
	ListForTenant(ctx context.Context, tenantID uuid.UUID, period PeriodKey) ([]*UsageCounter, error)
}

// PolicyRepository resolves the effective quota policy for a tenant's
// current plan and trial status, both external facts owned by billing
type PolicyRepository interface {
	// FindForPlan loads the policy for a plan; trial tightens every cap
	FindForPlan(ctx context.Context, planID string, trial bool) (*QuotaPolicy, error)
}

// OverageEvent is surfaced to the billing collaborator whenever a
// soft-capped reservation exceeds its limit
type OverageEvent struct {
	TenantID   uuid.UUID
	Resource   ResourceType
	Period     PeriodKey
	Amount     int64
	UnitCost   decimal.Decimal
	TotalCost  decimal.Decimal
	RecordedAt time.Time
}

// OverageSink receives billable overage events
type OverageSink interface {
	Publish(ctx context.Context, event OverageEvent) error
}
