package monitor

import (
	"fmt"
	"time"

	"github.com/example/worktrack/internal/idle"
)

// Config controls idle thresholds and tick cadence.
type Config struct {
	WarningMinutes  int
	AutoStopMinutes int
	Interval        time.Duration
	// Lookback bounds the activity history read per session. Idle time is
	// never measured beyond it unless an ACTIVE signal is still in the window.
	Lookback time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		WarningMinutes:  30,
		AutoStopMinutes: 60,
		Interval:        time.Minute,
		Lookback:        idle.LookbackWindow,
	}
}

// Validate rejects thresholds that cannot produce a warning before an auto-stop.
func (c Config) Validate() error {
	switch {
	case c.WarningMinutes <= 0:
		return fmt.Errorf("monitor: warning minutes must be positive, got %d", c.WarningMinutes)
	case c.AutoStopMinutes <= 0:
		return fmt.Errorf("monitor: auto-stop minutes must be positive, got %d", c.AutoStopMinutes)
	case c.WarningMinutes >= c.AutoStopMinutes:
		return fmt.Errorf("monitor: warning minutes (%d) must be below auto-stop minutes (%d)", c.WarningMinutes, c.AutoStopMinutes)
	case c.Interval <= 0:
		return fmt.Errorf("monitor: interval must be positive, got %s", c.Interval)
	case c.Lookback <= 0:
		return fmt.Errorf("monitor: lookback must be positive, got %s", c.Lookback)
	}
	return nil
}

// lookbackShort reports whether the warning threshold lies beyond the lookback window.
func (c Config) lookbackShort() bool {
	return time.Duration(c.WarningMinutes)*time.Minute > c.Lookback
}
