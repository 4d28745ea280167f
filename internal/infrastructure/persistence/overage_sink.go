package persistence

import (
	"context"

	"github.com/concierge/gateway/internal/domain/billing"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOverageSink appends billable overage events to a table the billing
// collaborator drains on its own schedule. Monetary values are stored as
// decimal strings so no precision is lost on the way to invoicing.
type GormOverageSink struct {
	db *gorm.DB
}

// NewGormOverageSink creates an overage event sink
func NewGormOverageSink(db *gorm.DB) *GormOverageSink {
	return &GormOverageSink{db: db}
}

// Publish records an overage event
func (s *GormOverageSink) Publish(ctx context.Context, event billing.OverageEvent) error {
	model := OverageEventModel{
		ID:         uuid.New(),
		TenantID:   event.TenantID,
		Resource:   string(event.Resource),
		Period:     string(event.Period),
		Amount:     event.Amount,
		UnitCost:   event.UnitCost.String(),
		TotalCost:  event.TotalCost.String(),
		RecordedAt: event.RecordedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Ensure GormOverageSink implements the sink interface
var _ billing.OverageSink = (*GormOverageSink)(nil)
