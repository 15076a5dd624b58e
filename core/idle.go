package core

import "time"

// HeartbeatInterval is the pause between idle log lines once the sweep is done.
const HeartbeatInterval = 1000 * time.Millisecond

// Idle logs a heartbeat every interval until stop is closed.
// A nil stop channel idles forever, which is what the firmware does.
func Idle(tag string, interval time.Duration, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(interval):
			LogInfo(tag, "zzz")
		}
	}
}
