package core

import "time"

// ClockSource returns a monotonic timestamp in microseconds.
type ClockSource func() uint64

var bootTime = time.Now()

var clockSource ClockSource = runtimeMicros

// runtimeMicros is the fallback clock based on the Go runtime's monotonic time.
func runtimeMicros() uint64 {
	return uint64(time.Since(bootTime) / time.Microsecond)
}

// SetClockSource installs a platform clock, e.g. a hardware 64-bit µs timer.
// Passing nil restores the runtime clock.
func SetClockSource(src ClockSource) {
	if src == nil {
		src = runtimeMicros
	}
	clockSource = src
}

// NowMicros returns the current timestamp in microseconds.
func NowMicros() uint64 {
	return clockSource()
}

// UptimeMillis returns the current timestamp in milliseconds, as used in log lines.
func UptimeMillis() uint64 {
	return clockSource() / 1000
}
