package sfu

import (
	"errors"
	"fmt"
)

var (
	errAlreadyEnabled     = errors.New("consumer already enabled")
	errWantOneEncoding    = errors.New("consumer rtpParameters must carry exactly one encoding")
	errUnknownPayloadType = errors.New("encoding references an unknown payload type")
)

// ProtocolError marks malformed RTP/RTCP/payload-descriptor input: the
// packet is dropped, a counter incremented, and processing continues
// (spec §7). Callers should log it at debug and move on, never surface
// it to the control-plane.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("protocol error in %s", e.Op)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConfigError marks invalid rtpParameters at enable time: the operation
// fails with a rejection and the entity stays in its prior state.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("config error in %s", e.Op)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ResourceError marks a lost transport: the owning Consumer transitions
// to Disabled and pending retransmissions are discarded.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resource error in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("resource error in %s", e.Op)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// InvariantViolation is a bug: the worker aborts and its parent process
// restarts it. Call Assert rather than returning this from ordinary
// control flow.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.Msg }

// Assert panics with an InvariantViolation when cond is false. Use at
// "this should never happen" sites (spec §9 design note on exceptions).
func Assert(cond bool, msg string) {
	if !cond {
		panic(&InvariantViolation{Msg: msg})
	}
}
