package heartbeat

import (
	"time"

	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/logging"
)

// Config configures heartbeat monitoring for one connection.
// Interval and Tolerance carry no defaults: both are mandatory.
type Config struct {
	// Interval between local heartbeat attempts. Must be positive.
	Interval time.Duration

	// Tolerance is the maximum drift (sent-but-unanswered heartbeats)
	// before the connection is declared dead. Must be positive.
	Tolerance int

	// Clock supplies the periodic timer. Nil means the system clock;
	// tests inject a FakeClock.
	Clock Clock

	// Logger for heartbeat events. Nil means discard.
	Logger *logging.Logger

	// Buffer sizes the filtered incoming stream. Default: the
	// delegate-facing default used across connkit.
	Buffer int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return ckerrors.InvalidInput("heartbeat interval must be positive")
	}
	if c.Tolerance <= 0 {
		return ckerrors.InvalidInput("heartbeat tolerance must be positive")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Clock == nil {
		out.Clock = SystemClock()
	}
	if out.Logger == nil {
		out.Logger = logging.Discard()
	}
	return out
}
