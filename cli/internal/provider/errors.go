package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrExhausted indicates every enabled profile in the requested role's chain
// has been attempted and failed.
var ErrExhausted = errors.New("provider chain exhausted")

// ErrNoProfiles indicates the requested role has no enabled profiles at all
// (none configured, or every profile lacked its credential at startup).
var ErrNoProfiles = errors.New("no enabled profiles for role")

// failKind classifies a single provider call failure. Transport detail never
// escapes the router; callers only ever see ErrExhausted or a success.
type failKind int

const (
	failTransport failKind = iota // connection errors, 5xx, malformed replies
	failTimeout                   // router-enforced deadline exceeded
	failRateLimited               // HTTP 429
	failAuth                      // HTTP 401/403 or model not found
)

// callError is one classified failure from a handler.
type callError struct {
	kind       failKind
	status     int
	retryAfter time.Duration // only for failRateLimited; 0 = unknown
	err        error
}

func (e *callError) Error() string {
	switch e.kind {
	case failTimeout:
		return fmt.Sprintf("timeout: %v", e.err)
	case failRateLimited:
		return fmt.Sprintf("rate limited (HTTP %d)", e.status)
	case failAuth:
		return fmt.Sprintf("auth/model failure (HTTP %d): %v", e.status, e.err)
	}
	return fmt.Sprintf("transport failure: %v", e.err)
}

func (e *callError) Unwrap() error { return e.err }
