package persistence

import (
	"time"

	"github.com/google/uuid"
)

// TenantModel is the GORM model for tenant configuration. The gateway only
// reads tenants; provisioning and plan changes belong to the billing
// collaborator.
type TenantModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName    string    `gorm:"type:varchar(200);not null"`
	PlanID         string    `gorm:"type:varchar(50);not null;default:'free'"`
	Status         string    `gorm:"type:varchar(20);not null;default:'active';index"`
	TransferNumber string    `gorm:"type:varchar(50)"`
	Greeting       string    `gorm:"type:text"`
	Locale         string    `gorm:"type:varchar(10);default:'fr-FR'"`
	Features       []byte    `gorm:"type:jsonb;default:'{}'"`
	TrialEndsAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TenantModel) TableName() string {
	return "tenants"
}

// TenantBindingModel is the GORM model for channel-address ownership
type TenantBindingModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChannelAddress string    `gorm:"type:varchar(100);not null;index:idx_binding_address_kind"`
	ChannelKind    string    `gorm:"type:varchar(20);not null;index:idx_binding_address_kind"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index"`
	Status         string    `gorm:"type:varchar(20);not null;default:'active'"`
	ReleasedAt     *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (TenantBindingModel) TableName() string {
	return "tenant_bindings"
}

// UsageCounterModel is the GORM model for per-period usage tallies.
// The composite unique index backs the upsert-increment; rows are never
// reset, a new period simply inserts a new row.
type UsageCounterModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Period    string    `gorm:"type:varchar(10);primaryKey"`
	Resource  string    `gorm:"type:varchar(50);primaryKey"`
	Used      int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (UsageCounterModel) TableName() string {
	return "usage_counters"
}

// QuotaPolicyModel is the GORM model for per-plan resource limits
type QuotaPolicyModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlanID           string    `gorm:"type:varchar(50);not null;index:idx_policy_plan_resource,unique"`
	Resource         string    `gorm:"type:varchar(50);not null;index:idx_policy_plan_resource,unique"`
	ResourceLimit    int64     `gorm:"not null;default:-1"`
	HardCap          bool      `gorm:"not null;default:false"`
	OverageUnitCost  string    `gorm:"type:varchar(32);not null;default:'0'"`
	OverageHardLimit int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (QuotaPolicyModel) TableName() string {
	return "quota_policies"
}

// OverageEventModel is the GORM model for billable overage events handed to
// the billing collaborator
type OverageEventModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Resource   string    `gorm:"type:varchar(50);not null"`
	Period     string    `gorm:"type:varchar(10);not null;index"`
	Amount     int64     `gorm:"not null"`
	UnitCost   string    `gorm:"type:varchar(32);not null"`
	TotalCost  string    `gorm:"type:varchar(32);not null"`
	RecordedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for the model
func (OverageEventModel) TableName() string {
	return "overage_events"
}
