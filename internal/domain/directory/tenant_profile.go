package directory

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the subscription standing of a tenant as supplied
// by the billing collaborator. The gateway treats it as read-only input.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusSuspended TenantStatus = "suspended"
)

// TenantProfile is the denormalized tenant configuration carried alongside a
// resolved binding. It is a read-only snapshot: directory refreshes replace
// whole profiles, individual fields are never patched in place.
type TenantProfile struct {
	TenantID       uuid.UUID
	DisplayName    string
	PlanID         string
	Status         TenantStatus
	TransferNumber string
	Greeting       string
	Locale         string
	Features       map[string]bool
	TrialEndsAt    *time.Time
}

// IsTrial returns true while the tenant is in its trial period
func (p *TenantProfile) IsTrial() bool {
	if p.Status != TenantStatusTrial {
		return false
	}
	return p.TrialEndsAt == nil || time.Now().Before(*p.TrialEndsAt)
}

// IsServiceable returns true if the tenant may receive traffic at all
func (p *TenantProfile) IsServiceable() bool {
	return p.Status == TenantStatusActive || p.Status == TenantStatusTrial
}

// HasFeature reports whether a named feature flag is enabled for the tenant
func (p *TenantProfile) HasFeature(name string) bool {
	return p.Features[name]
}
