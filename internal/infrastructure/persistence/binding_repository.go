package persistence

import (
	"context"
	"errors"

	"github.com/concierge/gateway/internal/domain/directory"
	"github.com/concierge/gateway/internal/domain/shared"
	"gorm.io/gorm"
)

// GormBindingRepository implements directory.BindingRepository
type GormBindingRepository struct {
	db *gorm.DB
}

// NewGormBindingRepository creates a binding repository
func NewGormBindingRepository(db *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: db}
}

func bindingToModel(b *directory.TenantBinding) *TenantBindingModel {
	return &TenantBindingModel{
		ID:             b.ID,
		ChannelAddress: b.ChannelAddress,
		ChannelKind:    string(b.ChannelKind),
		TenantID:       b.TenantID,
		Status:         string(b.Status),
		ReleasedAt:     b.ReleasedAt,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func bindingToEntity(m *TenantBindingModel) *directory.TenantBinding {
	return &directory.TenantBinding{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ChannelAddress: m.ChannelAddress,
		ChannelKind:    directory.ChannelKind(m.ChannelKind),
		TenantID:       m.TenantID,
		Status:         directory.BindingStatus(m.Status),
		ReleasedAt:     m.ReleasedAt,
	}
}

// Save persists a new binding, enforcing the one-active-binding invariant
// per (address, kind) inside a transaction
func (r *GormBindingRepository) Save(ctx context.Context, binding *directory.TenantBinding) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&TenantBindingModel{}).
			Where("channel_address = ? AND channel_kind = ? AND status = ?",
				binding.ChannelAddress, string(binding.ChannelKind), string(directory.BindingStatusActive)).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return shared.ErrAlreadyExists
		}
		return tx.Create(bindingToModel(binding)).Error
	})
}

// FindActive returns the active binding for an address and kind
func (r *GormBindingRepository) FindActive(ctx context.Context, address string, kind directory.ChannelKind) (*directory.TenantBinding, error) {
	var model TenantBindingModel
	err := r.db.WithContext(ctx).
		Where("channel_address = ? AND channel_kind = ? AND status = ?",
			address, string(kind), string(directory.BindingStatusActive)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return bindingToEntity(&model), nil
}

// ListActive returns all active bindings for bulk cache building
func (r *GormBindingRepository) ListActive(ctx context.Context) ([]*directory.TenantBinding, error) {
	var models []TenantBindingModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(directory.BindingStatusActive)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	bindings := make([]*directory.TenantBinding, 0, len(models))
	for i := range models {
		bindings = append(bindings, bindingToEntity(&models[i]))
	}
	return bindings, nil
}

// Release marks the active binding for (address, kind) as released
func (r *GormBindingRepository) Release(ctx context.Context, address string, kind directory.ChannelKind) error {
	result := r.db.WithContext(ctx).Model(&TenantBindingModel{}).
		Where("channel_address = ? AND channel_kind = ? AND status = ?",
			address, string(kind), string(directory.BindingStatusActive)).
		Updates(map[string]any{
			"status":      string(directory.BindingStatusReleased),
			"released_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormBindingRepository implements the repository interface
var _ directory.BindingRepository = (*GormBindingRepository)(nil)
