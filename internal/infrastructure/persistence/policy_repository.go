package persistence

import (
	"context"
	"fmt"

	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPolicyRepository implements billing.PolicyRepository over the
// quota_policies table. One row per (plan, resource); plans with no rows at
// all resolve to an empty policy, which the domain treats as unlimited.
type GormPolicyRepository struct {
	db *gorm.DB
}

// NewGormPolicyRepository creates a quota policy repository
func NewGormPolicyRepository(db *gorm.DB) *GormPolicyRepository {
	return &GormPolicyRepository{db: db}
}

// FindForPlan loads the effective policy for a plan
func (r *GormPolicyRepository) FindForPlan(ctx context.Context, planID string, trial bool) (*billing.QuotaPolicy, error) {
	var models []QuotaPolicyModel
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	policy, err := billing.NewQuotaPolicy(planID, trial)
	if err != nil {
		return nil, err
	}
	for i := range models {
		unitCost, err := decimal.NewFromString(models[i].OverageUnitCost)
		if err != nil {
			return nil, fmt.Errorf("parse overage unit cost for plan %s resource %s: %w", planID, models[i].Resource, err)
		}
		resource, err := billing.ParseResourceType(models[i].Resource)
		if err != nil {
			return nil, err
		}
		policy.WithLimit(resource, billing.ResourceLimit{
			Limit:            models[i].ResourceLimit,
			HardCap:          models[i].HardCap,
			OverageUnitCost:  unitCost,
			OverageHardLimit: models[i].OverageHardLimit,
		})
	}
	return policy, nil
}

// Ensure GormPolicyRepository implements the repository interface
var _ billing.PolicyRepository = (*GormPolicyRepository)(nil)
