package billing

import (
	"fmt"
	"time"
)

// ResourceType identifies a metered resource that admission control gates
type ResourceType string

const (
	// ResourceTelephoneMinutes tracks inbound voice minutes consumed
	ResourceTelephoneMinutes ResourceType = "TELEPHONE_MINUTES"

	// ResourceMessagingTurns tracks inbound messaging-channel turns
	ResourceMessagingTurns ResourceType = "MESSAGING_TURNS"

	// ResourceWebTurns tracks web-widget turns
	ResourceWebTurns ResourceType = "WEB_TURNS"

	// ResourceAIInteractions tracks calls into the conversation engine
	ResourceAIInteractions ResourceType = "AI_INTERACTIONS"
)

// String returns the string representation of ResourceType
func (r ResourceType) String() string {
	return string(r)
}

// IsValid returns true if the resource type is valid
func (r ResourceType) IsValid() bool {
	switch r {
	case ResourceTelephoneMinutes, ResourceMessagingTurns, ResourceWebTurns, ResourceAIInteractions:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the resource
func (r ResourceType) DisplayName() string {
	switch r {
	case ResourceTelephoneMinutes:
		return "Telephone minutes"
	case ResourceMessagingTurns:
		return "Messaging turns"
	case ResourceWebTurns:
		return "Web turns"
	case ResourceAIInteractions:
		return "AI interactions"
	default:
		return string(r)
	}
}

// ParseResourceType parses a string into a ResourceType
func ParseResourceType(s string) (ResourceType, error) {
	r := ResourceType(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown resource type: %q", s)
	}
	return r, nil
}

// AllResourceTypes lists every metered resource
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceTelephoneMinutes,
		ResourceMessagingTurns,
		ResourceWebTurns,
		ResourceAIInteractions,
	}
}

// PeriodKey identifies a billing month ("2026-09"). Counters never reset in
// place: a new period simply uses a new key and the old rows stay queryable.
type PeriodKey string

// CurrentPeriod returns the period key for the given instant in UTC
func CurrentPeriod(now time.Time) PeriodKey {
	return PeriodKey(now.UTC().Format("2006-01"))
}

// String returns the string representation of PeriodKey
func (p PeriodKey) String() string {
	return string(p)
}

// Bounds returns the [start, end) interval the period covers
func (p PeriodKey) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period key %q: %w", p, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}
