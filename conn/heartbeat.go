package conn

// Heartbeat is the zero-payload marker message used to signal
// liveness. It carries no timestamp and no sequence number; receivers
// recognize it purely by type. Being an empty struct, any two values
// compare equal.
type Heartbeat struct{}

// IsHeartbeat reports whether msg is a heartbeat marker.
func IsHeartbeat(msg any) bool {
	switch msg.(type) {
	case Heartbeat, *Heartbeat:
		return true
	default:
		return false
	}
}
