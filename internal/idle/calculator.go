// Package idle derives continuous idle time from a session's activity signals.
package idle

import "time"

// LookbackWindow bounds the activity history considered by the calculator.
// Idle time can only be measured up to this span when no ACTIVE signal is
// present, so idle thresholds above it rely on ACTIVE signals ageing out.
const LookbackWindow = 15 * time.Minute

// Observation is a single activity signal.
type Observation struct {
	At   time.Time
	Idle bool
}

// ContinuousIdleMinutes returns whole minutes of idleness at now.
//
// observations must be ordered newest first and already restricted to the
// lookback window. The most recent active signal anchors the measurement;
// without one, the oldest signal in the window is used, so idleness longer
// than the window is underestimated. An empty window yields zero.
func ContinuousIdleMinutes(observations []Observation, now time.Time) int {
	if len(observations) == 0 {
		return 0
	}

	anchor := observations[len(observations)-1].At
	for _, o := range observations {
		if !o.Idle {
			anchor = o.At
			break
		}
	}

	elapsed := now.Sub(anchor)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}

// Since returns the start of the lookback window ending at now.
func Since(now time.Time, lookback time.Duration) time.Time {
	if lookback <= 0 {
		lookback = LookbackWindow
	}
	return now.Add(-lookback)
}
