package billing

import (
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UnlimitedLimit is the sentinel for resources with no quota bound
const UnlimitedLimit int64 = -1

// ResourceLimit bounds one resource under a plan
type ResourceLimit struct {
	Limit           int64           // UnlimitedLimit means no bound
	HardCap         bool            // deny instead of billing overage
	OverageUnitCost decimal.Decimal // cost per unit beyond the limit when soft-capped
	// OverageHardLimit converts a soft cap into a denial once overage itself
	// exceeds this many units. Zero means overage is never converted.
	OverageHardLimit int64
}

// IsUnlimited returns true if the resource has no bound
func (l ResourceLimit) IsUnlimited() bool {
	return l.Limit == UnlimitedLimit
}

// QuotaPolicy is the immutable per-plan quota configuration for a billing
// period. Trial tenants use the same structure but every limit is treated as
// a hard cap regardless of the configured flag.
type QuotaPolicy struct {
	PlanID string
	Trial  bool
	Limits map[ResourceType]ResourceLimit
}

// NewQuotaPolicy creates a policy for a plan
func NewQuotaPolicy(planID string, trial bool) (*QuotaPolicy, error) {
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}
	return &QuotaPolicy{
		PlanID: planID,
		Trial:  trial,
		Limits: make(map[ResourceType]ResourceLimit),
	}, nil
}

// WithLimit sets the limit for a resource
func (p *QuotaPolicy) WithLimit(resource ResourceType, limit ResourceLimit) *QuotaPolicy {
	p.Limits[resource] = limit
	return p
}

// LimitFor returns the effective limit for a resource. Resources without an
// explicit entry are unlimited. Trial status upgrades every cap to hard.
func (p *QuotaPolicy) LimitFor(resource ResourceType) ResourceLimit {
	limit, ok := p.Limits[resource]
	if !ok {
		return ResourceLimit{Limit: UnlimitedLimit}
	}
	if p.Trial {
		limit.HardCap = true
	}
	return limit
}

// Decision is the outcome of an admission check
type Decision string

const (
	DecisionAdmitted           Decision = "ADMITTED"
	DecisionDenied             Decision = "DENIED"
	DecisionAllowedWithOverage Decision = "ALLOWED_WITH_OVERAGE"
)

// AdmissionResult carries the outcome of CheckAndReserve
type AdmissionResult struct {
	Decision    Decision
	Resource    ResourceType
	Period      PeriodKey
	Used        int64 // counter value after the reservation (or at denial)
	Limit       int64
	Reason      string
	OverageCost decimal.Decimal // billable amount when allowed with overage
}

// Admitted returns true if the interaction may proceed
func (r AdmissionResult) Admitted() bool {
	return r.Decision == DecisionAdmitted || r.Decision == DecisionAllowedWithOverage
}
