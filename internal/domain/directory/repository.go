package directory

import (
	"context"

	"github.com/google/uuid"
)

// BindingRepository provides access to the persistent tenant binding store
type BindingRepository interface {
	// Save persists a new binding. Fails if an active binding already exists
	// for the same (address, kind) pair.
	Save(ctx context.Context, binding *TenantBinding) error

	// FindActive returns the active binding for an address and kind
	FindActive(ctx context.Context, address string, kind ChannelKind) (*TenantBinding, error)

	// ListActive returns all active bindings for bulk cache building
	ListActive(ctx context.Context) ([]*TenantBinding, error)

	// Release marks the active binding for (address, kind) as released
	Release(ctx context.Context, address string, kind ChannelKind) error
}

// TenantProfileRepository reads the denormalized tenant configuration that
// the directory cache carries alongside each binding
type TenantProfileRepository interface {
	// FindByIDs loads profiles for the given tenants in one round trip
	FindByIDs(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]*TenantProfile, error)

	// FindByID loads a single tenant profile
	FindByID(ctx context.Context, tenantID uuid.UUID) (*TenantProfile, error)
}
