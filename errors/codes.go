package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where reconnecting
	// or retrying may succeed. Examples: heartbeat timeouts, network
	// hiccups, temporary peer unavailability.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid configuration, unsupported payload.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion.
	// Examples: send queue full, subscriber buffer overrun.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system
	// failures. Examples: codec corruption, invariant violations.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Peer or broker temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Network connectivity issue

	// Permanent errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"   // Operation not supported
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Resource errors
	ErrCodeQueueFull ErrorCode = "QUEUE_FULL" // Send queue at capacity

	// Internal errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Malformed frame or codec failure

	// Connection-specific errors
	ErrCodeHeartbeatTimeout ErrorCode = "HEARTBEAT_TIMEOUT" // Too many heartbeats missed
	ErrCodeSubmitFailed     ErrorCode = "SUBMIT_FAILED"     // Writing a message to the connection failed
	ErrCodeConnClosed       ErrorCode = "CONN_CLOSED"       // Connection already terminated
	ErrCodePeerGone         ErrorCode = "PEER_GONE"         // Peer closed or vanished
	ErrCodeAckTimeout       ErrorCode = "ACK_TIMEOUT"       // Peer acknowledgment not received in time
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	// Transient
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr:
		return CategoryTransient

	// Permanent
	case ErrCodeInvalidInput, ErrCodeUnsupported, ErrCodeCanceled:
		return CategoryPermanent

	// Resource
	case ErrCodeQueueFull:
		return CategoryResource

	// Internal
	case ErrCodeInternal, ErrCodeCorruption:
		return CategoryInternal

	// Connection-specific: a fresh connection may well succeed, except
	// a closed connection is closed for good.
	case ErrCodeHeartbeatTimeout, ErrCodeSubmitFailed, ErrCodePeerGone, ErrCodeAckTimeout:
		return CategoryTransient
	case ErrCodeConnClosed:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:          "operation timed out",
	ErrCodeUnavailable:      "peer temporarily unavailable",
	ErrCodeNetworkErr:       "network connectivity error",
	ErrCodeInvalidInput:     "invalid input provided",
	ErrCodeUnsupported:      "operation not supported",
	ErrCodeCanceled:         "operation canceled",
	ErrCodeQueueFull:        "send queue full",
	ErrCodeInternal:         "internal error",
	ErrCodeCorruption:       "malformed frame",
	ErrCodeHeartbeatTimeout: "too many heartbeats missed",
	ErrCodeSubmitFailed:     "message submission failed",
	ErrCodeConnClosed:       "connection closed",
	ErrCodePeerGone:         "peer closed the connection",
	ErrCodeAckTimeout:       "acknowledgment timed out",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
