// Package sim provides a software continuous ADC that behaves like a
// frame-based hardware driver: rate quantisation through an integer clock
// divider, a bounded sample pool and overflow notifications.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"adcrate/core"
)

var (
	ErrNotConfigured = errors.New("sim: not configured")
	ErrRunning       = errors.New("sim: conversion running")
	ErrStopped       = errors.New("sim: conversion not running")
	ErrRateRange     = errors.New("sim: sample rate out of range")
	ErrNoChannels    = errors.New("sim: no active channels")
	ErrDeinit        = errors.New("sim: driver deinitialised")
)

// Config describes the emulated peripheral.
type Config struct {
	FrameBytes uint32        `yaml:"frame_bytes"`
	PoolBytes  int           `yaml:"pool_bytes"`
	ClockHz    float64       `yaml:"clock_hz"`    // ADC clock, 0 disables quantisation
	MaxRateHz  float64       `yaml:"max_rate_hz"` // delivery ceiling, 0 for none
	LowHz      float64       `yaml:"low_hz"`
	HighHz     float64       `yaml:"high_hz"`
	Tick       time.Duration `yaml:"tick"`
}

// DefaultConfig emulates an RP2040-class SAR ADC: 48 MHz clock, 16-bit
// divider, 96 cycles per conversion.
func DefaultConfig() Config {
	return Config{
		FrameBytes: core.DefaultTransferBytes,
		PoolBytes:  core.DefaultPoolBytes,
		ClockHz:    48e6,
		LowHz:      48e6 / 65536,
		HighHz:     48e6 / 96,
		Tick:       time.Millisecond,
	}
}

// Driver implements core.StreamDriver in software. Callbacks run on the
// producer goroutine, which stands in for interrupt context.
type Driver struct {
	cfg  Config
	pool *core.SamplePool

	mu         sync.Mutex
	cbs        core.StreamCallbacks
	rateHz     float64
	configured bool
	running    bool
	deinit     bool
	stop       chan struct{}
	done       chan struct{}

	// avail is poked after every pushed frame.
	avail chan struct{}
}

// New creates a stopped, unconfigured driver.
func New(cfg Config) *Driver {
	def := DefaultConfig()
	if cfg.FrameBytes == 0 {
		cfg.FrameBytes = def.FrameBytes
	}
	if cfg.PoolBytes == 0 {
		cfg.PoolBytes = def.PoolBytes
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.LowHz == 0 && cfg.HighHz == 0 {
		cfg.LowHz, cfg.HighHz = def.LowHz, def.HighHz
	}
	return &Driver{
		cfg:   cfg,
		pool:  core.NewSamplePool(cfg.PoolBytes),
		avail: make(chan struct{}, 1),
	}
}

// Limits returns the lowest and highest rate Configure accepts.
func (d *Driver) Limits() (lowHz, highHz float64) {
	return d.cfg.LowHz, d.cfg.HighHz
}

// EffectiveRateHz is the rate the emulated hardware actually converts at
// after the divider is applied.
func (d *Driver) EffectiveRateHz() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rateHz
}

// Quantize returns the rate reachable with an integer divider of clockHz.
func Quantize(rateHz, clockHz float64) float64 {
	if clockHz <= 0 || rateHz <= 0 {
		return rateHz
	}
	div := math.Round(clockHz / rateHz)
	if div < 1 {
		div = 1
	}
	return clockHz / div
}

func (d *Driver) Configure(cfg core.StreamConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.deinit:
		return ErrDeinit
	case d.running:
		return ErrRunning
	case len(cfg.Patterns) == 0:
		return ErrNoChannels
	case cfg.SampleRateHz < d.cfg.LowHz || cfg.SampleRateHz > d.cfg.HighHz:
		return fmt.Errorf("%w: %.3f Hz not in [%.3f, %.3f]", ErrRateRange, cfg.SampleRateHz, d.cfg.LowHz, d.cfg.HighHz)
	}
	d.rateHz = Quantize(cfg.SampleRateHz, d.cfg.ClockHz)
	d.configured = true
	return nil
}

func (d *Driver) RegisterCallbacks(cbs core.StreamCallbacks) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	d.cbs = cbs
	return nil
}

func (d *Driver) Flush() error {
	d.pool.Reset()
	return nil
}

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.deinit:
		return ErrDeinit
	case !d.configured:
		return ErrNotConfigured
	case d.running:
		return ErrRunning
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	rate := d.rateHz
	if d.cfg.MaxRateHz > 0 && rate > d.cfg.MaxRateHz {
		rate = d.cfg.MaxRateHz
	}
	go d.produce(rate, d.cbs, d.stop, d.done)
	return nil
}

func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrStopped
	}
	d.running = false
	stop, done := d.stop, d.done
	d.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Read blocks until len(buf) bytes are pooled or timeout elapses.
func (d *Driver) Read(buf []byte, timeout time.Duration) (int, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	for {
		if d.pool.Available() >= len(buf) {
			return d.pool.Read(buf), nil
		}
		select {
		case <-d.avail:
		case <-expire:
			n := d.pool.Read(buf)
			return n, fmt.Errorf("%w after %v (%d of %d bytes)", core.ErrTimeout, timeout, n, len(buf))
		}
	}
}

func (d *Driver) Deinit() error {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if running {
		if err := d.Stop(); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.deinit = true
	d.configured = false
	d.mu.Unlock()
	d.pool.Reset()
	return nil
}

// produce emits whole frames on the schedule a converter running at rateHz
// would fill them.
func (d *Driver) produce(rateHz float64, cbs core.StreamCallbacks, stop, done chan struct{}) {
	defer close(done)

	frame := make([]byte, d.cfg.FrameBytes)
	frameSamples := float64(d.cfg.FrameBytes / core.BytesPerSample)
	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	start := time.Now()
	emitted := uint64(0)
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			due := uint64(now.Sub(start).Seconds() * rateHz / frameSamples)
			for ; emitted < due; emitted++ {
				if d.pool.Push(frame) {
					if cbs.OnConvDone != nil {
						cbs.OnConvDone(d.cfg.FrameBytes)
					}
					select {
					case d.avail <- struct{}{}:
					default:
					}
				} else if cbs.OnPoolOverflow != nil {
					cbs.OnPoolOverflow()
				}
			}
		}
	}
}
