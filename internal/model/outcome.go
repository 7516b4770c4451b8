package model

import (
	"encoding/json"
	"time"
)

// ErrorKind classifies a failed source call. Kinds, not exceptions: every
// failure an adapter can produce maps to exactly one kind, and retry policy
// is decided from the kind alone.
type ErrorKind string

const (
	// ErrKindAuthFailure means credentials were rejected. Never retried.
	ErrKindAuthFailure ErrorKind = "auth_failure"
	// ErrKindQuotaExhausted means the source's quota or credits ran out.
	// Never retried; the caller must top up or wait.
	ErrKindQuotaExhausted ErrorKind = "quota_exhausted"
	// ErrKindMalformedInput means the request itself is invalid (e.g. a
	// corrupt image). Never retried.
	ErrKindMalformedInput ErrorKind = "malformed_input"
	// ErrKindMalformedResponse means the source returned an unparseable
	// payload. Not retried for that attempt.
	ErrKindMalformedResponse ErrorKind = "malformed_response"
	// ErrKindTimeout means the per-call or global deadline elapsed.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindTransientNetwork covers connection resets, DNS failures, 5xx
	// responses and other conditions worth a bounded retry.
	ErrKindTransientNetwork ErrorKind = "transient_network"
)

// Retryable reports whether a call failing with this kind may be attempted
// again. Auth, quota and malformed failures short-circuit retries.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindTimeout, ErrKindTransientNetwork:
		return true
	default:
		return false
	}
}

// SourceOutcome is the result of consulting one source in one dispatch
// cycle. Created once, never mutated. Every selected source yields exactly
// one outcome, success or not — a hung or cancelled call still produces a
// timeout outcome so the feedback loop can penalize it.
type SourceOutcome struct {
	SourceID string `json:"source_id"`
	Success  bool   `json:"success"`

	// Payload is the raw source-specific response body, present only on
	// success. Record is filled in by the normalizer afterwards.
	Payload json.RawMessage   `json:"payload,omitempty"`
	Record  *NormalizedRecord `json:"record,omitempty"`

	// Confidence is the source's contribution in [0,1].
	Confidence float64       `json:"confidence"`
	Latency    time.Duration `json:"latency"`
	Attempts   int           `json:"attempts"`

	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}
