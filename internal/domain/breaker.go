package domain

import "time"

// BreakerState is the circuit position for one (tenant, upstream) pair.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerSnapshot is a point-in-time read of breaker state, for ops
// endpoints and logging. The authoritative counters live in the shared
// store, not in process memory.
type BreakerSnapshot struct {
	TenantID            string       `json:"tenant_id"`
	Upstream            string       `json:"upstream"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int64        `json:"consecutive_failures"`
	OpenedAt            time.Time    `json:"opened_at,omitempty"`
}
