package domain

import "time"

// ErrorKind classifies the failure that sent a message to the retry queue.
type ErrorKind string

const (
	ErrorKindBreakerOpen     ErrorKind = "circuit_breaker_open"
	ErrorKindUpstreamTimeout ErrorKind = "upstream_timeout"
	ErrorKindUpstreamFailure ErrorKind = "upstream_failure"
	ErrorKindUnexpected      ErrorKind = "unexpected"
)

// DLQEntry is one parked message awaiting replay. Stored as a JSON record
// under dlq:{id} plus a due-time index entry; the record carries its own TTL
// so the queue cannot grow without bound.
type DLQEntry struct {
	DLQID         string         `json:"dlq_id"`
	Message       InboundMessage `json:"message"`
	ErrorKind     ErrorKind      `json:"error_kind"`
	ErrorMessage  string         `json:"error_message"`
	RetryCount    int            `json:"retry_count"`
	FirstFailedAt time.Time      `json:"first_failed_at"`
	NextRetryAt   time.Time      `json:"next_retry_at"`
	CorrelationID string         `json:"correlation_id"`
}
