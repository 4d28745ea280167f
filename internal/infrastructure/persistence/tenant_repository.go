package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTenantRepository implements directory.TenantProfileRepository
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a tenant profile repository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

func tenantToProfile(m *TenantModel) *directory.TenantProfile {
	var features map[string]bool
	if len(m.Features) > 0 {
		_ = json.Unmarshal(m.Features, &features)
	}
	if features == nil {
		features = make(map[string]bool)
	}

	return &directory.TenantProfile{
		TenantID:       m.ID,
		DisplayName:    m.DisplayName,
		PlanID:         m.PlanID,
		Status:         directory.TenantStatus(m.Status),
		TransferNumber: m.TransferNumber,
		Greeting:       m.Greeting,
		Locale:         m.Locale,
		Features:       features,
		TrialEndsAt:    m.TrialEndsAt,
	}
}

// FindByIDs loads profiles for the given tenants in one query
func (r *GormTenantRepository) FindByIDs(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]*directory.TenantProfile, error) {
	profiles := make(map[uuid.UUID]*directory.TenantProfile, len(tenantIDs))
	if len(tenantIDs) == 0 {
		return profiles, nil
	}

	var models []TenantModel
	if err := r.db.WithContext(ctx).Where("id IN ?", tenantIDs).Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		profiles[models[i].ID] = tenantToProfile(&models[i])
	}
	return profiles, nil
}

// FindByID loads a single tenant profile
func (r *GormTenantRepository) FindByID(ctx context.Context, tenantID uuid.UUID) (*directory.TenantProfile, error) {
	var model TenantModel
	err := r.db.WithContext(ctx).Where("id = ?", tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return tenantToProfile(&model), nil
}

// Ensure GormTenantRepository implements the repository interface
var _ directory.TenantProfileRepository = (*GormTenantRepository)(nil)
