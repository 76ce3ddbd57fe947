// Package tools implements the research capabilities, their registry, and the dispatcher
// that turns a capability request into exactly one transcript turn.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Capability is one invocable information-retrieval capability.
// Input has already been validated against the descriptor's schema and defaulted.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, input map[string]any) (any, error)
}

// Request is a parsed capability call proposed by the reasoning engine.
type Request struct {
	Name   string         `json:"tool"`
	Input  map[string]any `json:"input"`
	CallID string         `json:"-"`
}

// ErrorKind classifies a failed dispatch.
type ErrorKind string

// Dispatcher error kinds.
const (
	KindUnknownCapability ErrorKind = "UnknownCapability"
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindCapabilityFailure ErrorKind = "CapabilityFailure"
)

// Failure causes carried by KindCapabilityFailure.
const (
	CauseTransientUpstream = "TransientUpstreamFailure"
	CausePermanentUpstream = "PermanentUpstreamFailure"
)

// ErrorInfo describes why a dispatch failed.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Cause   string    `json:"cause,omitempty"`
}

// Result is the outcome of one dispatch. Exactly one of Payload or Error is set.
type Result struct {
	OK      bool       `json:"ok"`
	Payload any        `json:"payload,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// UpstreamKind says whether retrying an upstream call may help.
type UpstreamKind int

const (
	// UpstreamTransient covers timeouts, connection failures, 429 and 5xx.
	UpstreamTransient UpstreamKind = iota
	// UpstreamPermanent covers everything retrying cannot fix.
	UpstreamPermanent
)

// UpstreamError is the single error type adapters return for upstream failures.
type UpstreamError struct {
	Err        error
	Op         string
	StatusCode int
	Kind       UpstreamKind
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsRetryable lets the retry policy classify the error.
func (e *UpstreamError) IsRetryable() bool { return e.Kind == UpstreamTransient }

// Sentinel errors.
var (
	ErrRegistrySealed = errors.New("capability registry sealed")
	ErrEmptyQuery     = errors.New("query must not be empty")
	ErrNotConfigured  = errors.New("capability not configured")
)

// permanent wraps err as a non-retryable upstream failure.
func permanent(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err, Kind: UpstreamPermanent}
}

// statusError classifies a non-2xx HTTP status.
func statusError(op string, status int, body string) *UpstreamError {
	kind := UpstreamPermanent
	if status == http.StatusTooManyRequests || status >= 500 {
		kind = UpstreamTransient
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return &UpstreamError{Op: op, StatusCode: status, Err: fmt.Errorf("%s: %s", http.StatusText(status), body), Kind: kind}
}

// transportError classifies a failure to complete an HTTP exchange.
// Anything but caller cancellation is worth another attempt.
func transportError(op string, err error) *UpstreamError {
	if errors.Is(err, context.Canceled) {
		return permanent(op, err)
	}
	return &UpstreamError{Op: op, Err: err, Kind: UpstreamTransient}
}
