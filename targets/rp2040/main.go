//go:build rp2040

package main

import (
	"machine"
	"time"

	"adcrate/core"
)

// Give the host time to open the CDC port before the table starts.
const startupDelay = 2 * time.Second

func main() {
	// Initialize USB CDC immediately
	InitUSB()

	// Timestamps and capture durations come from the 64-bit hardware timer
	core.SetClockSource(GetHardwareUptime)
	core.SetLogWriter(usbLogWriter)

	// Clear any watchdog left armed by a previous image
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		fail(err)
	}

	time.Sleep(startupDelay)

	drv := newStreamADC()
	cfg := core.DefaultSweepConfig(sampleFreqThresLow, sampleFreqThresHigh, defaultChannel)

	ctrl, err := core.NewController(drv, cfg)
	if err != nil {
		fail(err)
	}
	if _, err := ctrl.RunSweep(core.NewTextReporter(usbWriter{})); err != nil {
		fail(err)
	}
	if err := ctrl.Close(); err != nil {
		fail(err)
	}

	core.Idle(core.LogTag, core.HeartbeatInterval, nil)
}

// fail reports a fatal error the way the host expects it and halts.
func fail(err error) {
	core.LogError(core.LogTag, err.Error())
	panic(err)
}
