package core

import (
	"sync/atomic"
	"time"
)

// LogTag prefixes every log line the benchmark writes.
const LogTag = "ADCrate"

// Sweep defaults, matching the shipped benchmark.
const (
	DefaultGrowth        = 1.2
	DefaultCapture       = time.Second
	DefaultTransferBytes = 1024
	DefaultPoolBytes     = 4 * DefaultTransferBytes
	DefaultReadTimeout   = 5 * time.Second
)

// SweepConfig describes one sweep over a geometric sequence of sample rates.
type SweepConfig struct {
	StartHz float64 // first rate tried
	EndHz   float64 // exclusive upper bound
	Growth  float64 // multiplier between consecutive rates, > 1

	Capture       time.Duration // wall-clock length of each capture
	TransferBytes uint32        // read chunk and driver frame size, power of two
	ReadTimeout   time.Duration // per-read bound, 0 waits forever

	// Patterns lists only the active channels.
	Patterns []ChannelPattern
}

// DefaultSweepConfig sweeps [lowHz, highHz) with the shipped constants on a
// single channel.
func DefaultSweepConfig(lowHz, highHz float64, channel ChannelPattern) SweepConfig {
	return SweepConfig{
		StartHz:       lowHz,
		EndHz:         highHz,
		Growth:        DefaultGrowth,
		Capture:       DefaultCapture,
		TransferBytes: DefaultTransferBytes,
		ReadTimeout:   DefaultReadTimeout,
		Patterns:      []ChannelPattern{channel},
	}
}

// Validate rejects configurations that would never terminate or that the
// capture arithmetic cannot handle.
func (c SweepConfig) Validate() error {
	switch {
	case !(c.StartHz > 0):
		return invalidSweep("start rate must be positive")
	case !(c.EndHz > c.StartHz):
		return invalidSweep("end rate must exceed start rate")
	case !(c.Growth > 1.0):
		return invalidSweep("growth factor must be greater than 1")
	case c.Capture <= 0:
		return invalidSweep("capture duration must be positive")
	case c.TransferBytes == 0 || c.TransferBytes&(c.TransferBytes-1) != 0:
		return invalidSweep("transfer size must be a power of two")
	case c.TransferBytes%BytesPerSample != 0:
		return invalidSweep("transfer size must hold whole samples")
	case c.ReadTimeout < 0:
		return invalidSweep("read timeout must not be negative")
	case len(c.Patterns) == 0:
		return invalidSweep("at least one active channel is required")
	case len(c.Patterns) > MaxPatternLen:
		return invalidSweep("too many active channels")
	}
	// 2*round(duration*rate) has to fit the uint32 byte counter.
	if c.Capture.Seconds()*c.EndHz*BytesPerSample > float64(^uint32(0)-c.TransferBytes) {
		return invalidSweep("capture too long for the highest rate")
	}
	return nil
}

// Rates returns every rate the sweep visits, in order. It returns nil for an
// invalid configuration instead of looping forever.
func (c SweepConfig) Rates() []float64 {
	if c.Validate() != nil {
		return nil
	}
	var rates []float64
	for rate := c.StartHz; rate < c.EndHz; rate *= c.Growth {
		rates = append(rates, rate)
	}
	return rates
}

// RoundUpTransfer rounds n up to the next multiple of size, a power of two.
func RoundUpTransfer(n, size uint32) uint32 {
	return (n + size - 1) &^ (size - 1)
}

// TargetBytes is the number of bytes a capture of the given length reads at
// rateHz, rounded up to whole transfer frames so the last read ends on a
// frame-completion notification.
func TargetBytes(rateHz float64, capture time.Duration, transfer uint32) uint32 {
	samples := uint32(capture.Seconds()*rateHz + 0.5)
	return RoundUpTransfer(samples*BytesPerSample, transfer)
}

// Controller drives a StreamDriver through the sweep.
// It owns the driver for its whole lifetime.
type Controller struct {
	drv StreamDriver
	cfg SweepConfig
	buf []byte
	now ClockSource

	// Written only from the driver callbacks.
	samples   atomic.Uint64
	overflows atomic.Uint32
}

// NewController validates cfg and installs the counting callbacks on drv.
func NewController(drv StreamDriver, cfg SweepConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		drv: drv,
		cfg: cfg,
		buf: make([]byte, cfg.TransferBytes),
		now: NowMicros,
	}
	err := drv.RegisterCallbacks(StreamCallbacks{
		OnConvDone:     c.onConvDone,
		OnPoolOverflow: c.onPoolOverflow,
	})
	if err != nil {
		return nil, driverError("register callbacks", 0, err)
	}
	return c, nil
}

// Config returns the validated sweep configuration.
func (c *Controller) Config() SweepConfig {
	return c.cfg
}

// RunSweep captures once per rate and hands each result to r.
// The first error ends the sweep; results already reported stay reported.
// It returns the number of completed steps.
func (c *Controller) RunSweep(r Reporter) (int, error) {
	steps := 0
	for rate := c.cfg.StartHz; rate < c.cfg.EndHz; rate *= c.cfg.Growth {
		res, err := c.CaptureStep(rate)
		if err != nil {
			return steps, err
		}
		if err := r.Report(res); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}

// Close releases the driver. Conversion is already stopped after every step.
func (c *Controller) Close() error {
	return driverError("deinit", 0, c.drv.Deinit())
}

func (c *Controller) onConvDone(size uint32) {
	c.samples.Add(uint64(size / BytesPerSample))
}

func (c *Controller) onPoolOverflow() {
	c.overflows.Add(1)
}
