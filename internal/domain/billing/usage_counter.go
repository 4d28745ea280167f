package billing

import (
	"time"

	"github.com/google/uuid"
)

// UsageCounter is the per-tenant, per-period, per-resource usage tally.
// Used is monotonically non-decreasing within a period; it is mutated only
// through the usage repository's atomic increment.
type UsageCounter struct {
	TenantID  uuid.UUID
	Period    PeriodKey
	Resource  ResourceType
	Used      int64
	UpdatedAt time.Time
}

// Remaining returns how much of the limit is left, clamped at zero.
// A negative limit means unlimited and yields -1.
func (c *UsageCounter) Remaining(limit int64) int64 {
	if limit < 0 {
		return -1
	}
	remaining := limit - c.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}
