// Package errors provides a structured error taxonomy for connkit
// connections. It defines error codes and categories that enable
// consistent failure handling and retry decisions across transports.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where reconnecting may succeed
//     (heartbeat timeouts, network issues, etc.)
//   - Permanent: Failures where retry will not help (invalid input,
//     closed connection, etc.)
//   - Resource: Resource exhaustion issues (send queue full, etc.)
//   - Internal: Unexpected errors indicating bugs or system failures
//
// # Error Codes
//
// Each error has a specific code that identifies the type of failure:
//
//   - HEARTBEAT_TIMEOUT: Too many heartbeats missed on a connection
//   - SUBMIT_FAILED: Writing a message to the connection failed
//   - CONN_CLOSED: Operation attempted on a terminated connection
//   - ACK_TIMEOUT: Peer acknowledgment not received in time
//   - And more...
//
// # Usage
//
// Create a new error:
//
//	err := errors.HeartbeatTimeout("conn-7f3a")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "monitoring connection")
//
// Check the failure kind:
//
//	if errors.Is(err, errors.ErrCodeHeartbeatTimeout) {
//	    // reconnect
//	}
//
// # JSON Serialization
//
// Errors serialize to JSON so a close cause can travel to the peer
// inside a wire frame:
//
//	data, err := json.Marshal(connErr)
//
// and back:
//
//	var connErr errors.Error
//	json.Unmarshal(data, &connErr)
package errors
