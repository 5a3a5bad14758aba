package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Classify inspects an error returned by the transport layer and
// assigns it a taxonomy Kind. Transport errors are plain Go errors
// (the bulk client interface does not carry the taxonomy itself);
// Classify is how the rest of the engine learns what kind of failure
// it is dealing with.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var taxErr *Error
	if errors.As(err, &taxErr) {
		return taxErr.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	if isTransientNetworkError(err) {
		return ServiceProtection
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "duplicate"), strings.Contains(msg, "already associated"):
		return AlreadyExists
	case strings.Contains(msg, "cannot drop type") && strings.Contains(msg, "referenced"):
		return TransientRace
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return ServiceProtection
	case strings.Contains(msg, "execution time limit"), strings.Contains(msg, "concurrency limit"):
		return ServiceProtection
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timed out"):
		return Fatal
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"):
		return NotFound
	default:
		return Fatal
	}
}

func isTransientNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ENETUNREACH),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return true
		}
	}

	return false
}

// Retryable reports whether the taxonomy kind should ever be retried
// automatically by a caller's retry loop. ServiceProtection and
// TransientRace are handled internally by the executor (§4.5);
// everything else is surfaced to the caller as-is.
func Retryable(kind Kind) bool {
	switch kind {
	case ServiceProtection, TransientRace:
		return true
	default:
		return false
	}
}
