package persistence

import (
	"context"
	"errors"

	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUsageRepository implements billing.UsageRepository. The increment is a
// single upsert (INSERT ... ON CONFLICT DO UPDATE SET used = used + amount),
// so the stored counter stays monotonic under concurrent writers and a new
// billing period materializes its row on first use with no migration step.
type GormUsageRepository struct {
	db *gorm.DB
}

// NewGormUsageRepository creates a usage counter repository
func NewGormUsageRepository(db *gorm.DB) *GormUsageRepository {
	return &GormUsageRepository{db: db}
}

// Get returns the counter for (tenant, resource, period); missing rows read
// as zero
func (r *GormUsageRepository) Get(ctx context.Context, tenantID uuid.UUID, resource billing.ResourceType, period billing.PeriodKey) (*billing.UsageCounter, error) {
	var model UsageCounterModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND resource = ? AND period = ?", tenantID, string(resource), string(period)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &billing.UsageCounter{
				TenantID: tenantID,
				Period:   period,
				Resource: resource,
				Used:     0,
			}, nil
		}
		return nil, err
	}
	return &billing.UsageCounter{
		TenantID:  model.TenantID,
		Period:    billing.PeriodKey(model.Period),
		Resource:  billing.ResourceType(model.Resource),
		Used:      model.Used,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// Increment atomically adds amount to the counter, creating the row at zero
// first if needed, and returns the new value
func (r *GormUsageRepository) Increment(ctx context.Context, tenantID uuid.UUID, resource billing.ResourceType, period billing.PeriodKey, amount int64) (int64, error) {
	model := UsageCounterModel{
		TenantID: tenantID,
		Period:   string(period),
		Resource: string(resource),
		Used:     amount,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "period"}, {Name: "resource"}},
		DoUpdates: clause.Assignments(map[string]any{
			"used": gorm.Expr("usage_counters.used + ?", amount),
		}),
	}).Create(&model).Error
	if err != nil {
		return 0, err
	}

	counter, err := r.Get(ctx, tenantID, resource, period)
	if err != nil {
		return 0, err
	}
	return counter.Used, nil
}

// ListForTenant returns all counters for a tenant in a period
func (r *GormUsageRepository) ListForTenant(ctx context.Context, tenantID uuid.UUID, period billing.PeriodKey) ([]*billing.UsageCounter, error) {
	var models []UsageCounterModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, string(period)).
		Order("resource").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	counters := make([]*billing.UsageCounter, 0, len(models))
	for i := range models {
		counters = append(counters, &billing.UsageCounter{
			TenantID:  models[i].TenantID,
			Period:    billing.PeriodKey(models[i].Period),
			Resource:  billing.ResourceType(models[i].Resource),
			Used:      models[i].Used,
			UpdatedAt: models[i].UpdatedAt,
		})
	}
	return counters, nil
}

// Ensure GormUsageRepository implements the repository interface
var _ billing.UsageRepository = (*GormUsageRepository)(nil)
