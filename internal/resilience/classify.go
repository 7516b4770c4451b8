// Package resilience provides error classification, retry and circuit
// breaker patterns for source calls.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/collectscope/identify-cli/internal/model"
)

// SourceError carries a classified error kind alongside the underlying
// error. Adapters wrap every failure they can classify; anything that
// reaches the caller unclassified falls through KindOf heuristics.
type SourceError struct {
	Kind model.ErrorKind
	Err  error
}

func (e *SourceError) Error() string {
	return e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError wraps err with an explicit error kind.
func NewSourceError(kind model.ErrorKind, err error) *SourceError {
	return &SourceError{Kind: kind, Err: err}
}

// KindOf classifies an error into the failure taxonomy. An explicit
// SourceError in the chain is authoritative. Otherwise: deadline and
// network timeouts map to timeout, connection-level failures to
// transient_network. Unclassified errors also map to transient_network —
// the taxonomy has no unknown kind, and a bounded retry on an
// unclassified I/O error is cheaper than wrongly giving up.
func KindOf(err error) model.ErrorKind {
	if err == nil {
		return ""
	}

	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ErrKindTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return model.ErrKindTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	timeoutPatterns := []string{
		"i/o timeout",
		"tls handshake timeout",
		"deadline exceeded",
	}
	for _, p := range timeoutPatterns {
		if strings.Contains(msg, p) {
			return model.ErrKindTimeout
		}
	}

	return model.ErrKindTransientNetwork
}

// IsRetryable reports whether the error's classified kind permits another
// attempt. Auth, quota and malformed failures short-circuit retries even
// under a retry-everything default.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}

// KindFromHTTPStatus maps an HTTP response status to an error kind.
// Returns "" for statuses that are not failures.
func KindFromHTTPStatus(statusCode int) model.ErrorKind {
	switch {
	case statusCode == 401 || statusCode == 403:
		return model.ErrKindAuthFailure
	case statusCode == 402 || statusCode == 429:
		return model.ErrKindQuotaExhausted
	case statusCode == 400 || statusCode == 413 || statusCode == 422:
		return model.ErrKindMalformedInput
	case statusCode == 408 || statusCode == 504:
		return model.ErrKindTimeout
	case statusCode >= 500:
		return model.ErrKindTransientNetwork
	case statusCode >= 400:
		return model.ErrKindMalformedInput
	default:
		return ""
	}
}
