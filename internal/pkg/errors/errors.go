package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TenantIsolationError means the resolved tenant for an identity does not
// match the tenant the request claimed. Always fatal to the request.
type TenantIsolationError struct {
	Identity        string
	ClaimedTenantID string
	ActualTenantID  string
}

func (e *TenantIsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation: identity %q belongs to tenant %q, request claimed %q",
		e.Identity, e.ActualTenantID, e.ClaimedTenantID)
}

// ChannelSpoofingError means the channel named inside the payload differs
// from the channel the transport actually received the message on.
type ChannelSpoofingError struct {
	ClaimedChannel string
	ActualChannel  string
}

func (e *ChannelSpoofingError) Error() string {
	return fmt.Sprintf("channel spoofing detected: claimed %q, actual %q", e.ClaimedChannel, e.ActualChannel)
}

// CircuitBreakerOpenError is returned without contacting the upstream while
// its breaker is open.
type CircuitBreakerOpenError struct {
	TenantID   string
	Upstream   string
	RetryAfter time.Duration
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for upstream %q (tenant %s)", e.Upstream, e.TenantID)
}

// LockContentionError means another holder owns the reservation lock.
type LockContentionError struct {
	ResourceKey string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("resource %q is locked by another operation", e.ResourceKey)
}

// UpstreamTimeoutError wraps a per-call timeout against an upstream. It
// counts toward the breaker threshold for that upstream.
type UpstreamTimeoutError struct {
	Upstream string
	Timeout  time.Duration
	Err      error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("upstream %q timed out after %s", e.Upstream, e.Timeout)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// PermanentFailure marks work whose retry budget is exhausted. Surfaced to
// operators, never to the end user beyond a generic apology.
type PermanentFailure struct {
	DLQID string
	Err   error
}

func (e *PermanentFailure) Error() string {
	return fmt.Sprintf("permanent failure (dlq_id=%s): %v", e.DLQID, e.Err)
}

func (e *PermanentFailure) Unwrap() error { return e.Err }

// IsSecurity reports whether err is a tenant-isolation or channel-spoofing
// violation. Security errors are never swallowed or retried.
func IsSecurity(err error) bool {
	var ti *TenantIsolationError
	var cs *ChannelSpoofingError
	return errors.As(err, &ti) || errors.As(err, &cs)
}

// IsBreakerOpen reports whether err is a breaker rejection.
func IsBreakerOpen(err error) bool {
	var o *CircuitBreakerOpenError
	return errors.As(err, &o)
}

// IsLockContention reports whether err is a lock contention signal.
func IsLockContention(err error) bool {
	var l *LockContentionError
	return errors.As(err, &l)
}

// IsUpstreamTimeout reports whether err is a per-call upstream timeout.
func IsUpstreamTimeout(err error) bool {
	var t *UpstreamTimeoutError
	return errors.As(err, &t)
}
