package directory

import (
	"regexp"
	"strings"
	"time"

	"github.com/concierge/gateway/internal/domain/shared"
	"github.com/google/uuid"
)

// ChannelKind identifies the communication medium a binding covers.
// A single phone number may carry separate voice and messaging bindings;
// they are resolved independently.
type ChannelKind string

const (
	ChannelVoice     ChannelKind = "voice"
	ChannelMessaging ChannelKind = "messaging"
	ChannelWeb       ChannelKind = "web"
)

// String returns the string representation of ChannelKind
func (k ChannelKind) String() string {
	return string(k)
}

// IsValid returns true if the channel kind is valid
func (k ChannelKind) IsValid() bool {
	switch k {
	case ChannelVoice, ChannelMessaging, ChannelWeb:
		return true
	}
	return false
}

// BindingStatus represents the lifecycle state of a tenant binding
type BindingStatus string

const (
	BindingStatusActive   BindingStatus = "active"
	BindingStatusReleased BindingStatus = "released"
)

// TenantBinding is the exclusive ownership record between a normalized
// channel address and a tenant. At most one active binding exists per
// (address, kind) pair; bindings are created and released only through the
// privileged registration operations, never inferred from traffic.
type TenantBinding struct {
	shared.BaseEntity
	ChannelAddress string
	ChannelKind    ChannelKind
	TenantID       uuid.UUID
	Status         BindingStatus
	ReleasedAt     *time.Time
}

// NewTenantBinding creates an active binding for a tenant
func NewTenantBinding(address string, kind ChannelKind, tenantID uuid.UUID) (*TenantBinding, error) {
	normalized := NormalizeAddress(address)
	if normalized == "" {
		return nil, shared.NewDomainError("INVALID_ADDRESS", "Channel address cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_CHANNEL_KIND", "Invalid channel kind")
	}
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}

	return &TenantBinding{
		BaseEntity:     shared.NewBaseEntity(),
		ChannelAddress: normalized,
		ChannelKind:    kind,
		TenantID:       tenantID,
		Status:         BindingStatusActive,
	}, nil
}

// IsActive returns true if the binding currently routes traffic
func (b *TenantBinding) IsActive() bool {
	return b.Status == BindingStatusActive
}

// Release marks the binding as released. Released bindings are kept for
// audit but never resolve.
func (b *TenantBinding) Release() error {
	if b.Status == BindingStatusReleased {
		return shared.ErrInvalidState
	}
	now := time.Now()
	b.Status = BindingStatusReleased
	b.ReleasedAt = &now
	b.UpdatedAt = now
	return nil
}

var phoneShaped = regexp.MustCompile(`^\+?[0-9]{6,}$`)

// NormalizeAddress canonicalizes a channel address so that provider
// formatting differences ("+33 9 39 24 02 69", "09.39.24.02.69",
// "0033939240269") cannot split one number across two directory entries.
// Phone-shaped addresses come out in E.164-style "+<digits>"; opaque
// addresses (web widget keys) are lowercased and trimmed.
func NormalizeAddress(address string) string {
	s := strings.TrimSpace(address)
	if s == "" {
		return ""
	}

	// Drop the separators phone providers and humans insert. If nothing but
	// digits (and an optional leading +) remains, the address is a number.
	candidate := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '(', ')':
			return -1
		}
		return r
	}, s)

	if phoneShaped.MatchString(candidate) {
		digits := strings.TrimPrefix(candidate, "+")
		if strings.HasPrefix(digits, "00") {
			digits = digits[2:]
		}
		return "+" + digits
	}

	return strings.ToLower(s)
}
