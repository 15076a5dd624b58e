//go:build rp2040 && mcp3008

package main

import (
	"errors"
	"machine"
	"runtime"
	"time"

	"tinygo.org/x/drivers/mcp3008"

	"adcrate/core"
)

// An MCP3008 on SPI0 sampled by a paced goroutine. The part converts in
// 18 SPI clocks, so 3.6 MHz bounds it near 200 ksps.
const (
	mcpSPIFrequency = 3600000
	mcpInputs       = 8

	sampleFreqThresLow  = 100.0
	sampleFreqThresHigh = 200000.0

	readPoll = 100 * time.Microsecond
)

var (
	mcpCSPin  = machine.GP17
	mcpSCKPin = machine.GP18
	mcpSDOPin = machine.GP19
	mcpSDIPin = machine.GP16
)

var defaultChannel = core.ChannelPattern{Unit: 0, Channel: 0, Atten: core.Atten0dB, BitWidth: 10}

var (
	errRateRange     = errors.New("mcp3008: sample rate out of range")
	errChannel       = errors.New("mcp3008: unsupported channel")
	errNoChannels    = errors.New("mcp3008: no active channels")
	errRunning       = errors.New("mcp3008: conversion running")
	errNotConfigured = errors.New("mcp3008: not configured")
)

// McpStreamADC turns the single-shot MCP3008 into a frame-based stream.
type McpStreamADC struct {
	dev  *mcp3008.Device
	cbs  core.StreamCallbacks
	pool *core.SamplePool

	frameBytes int
	periodUs   float64
	channels   []int

	configured bool
	running    bool
	stop       chan struct{}
	done       chan struct{}
}

func newStreamADC() core.StreamDriver {
	machine.SPI0.Configure(machine.SPIConfig{
		Frequency: mcpSPIFrequency,
		SCK:       mcpSCKPin,
		SDO:       mcpSDOPin,
		SDI:       mcpSDIPin,
	})
	dev := mcp3008.New(machine.SPI0, mcpCSPin)
	dev.Configure()

	return &McpStreamADC{
		dev:        dev,
		pool:       core.NewSamplePool(core.DefaultPoolBytes),
		frameBytes: core.DefaultTransferBytes,
	}
}

func (m *McpStreamADC) Configure(cfg core.StreamConfig) error {
	switch {
	case m.running:
		return errRunning
	case len(cfg.Patterns) == 0:
		return errNoChannels
	case cfg.SampleRateHz < sampleFreqThresLow || cfg.SampleRateHz > sampleFreqThresHigh:
		return errRateRange
	}
	m.channels = m.channels[:0]
	for _, p := range cfg.Patterns {
		if p.Channel >= mcpInputs {
			return errChannel
		}
		m.channels = append(m.channels, int(p.Channel))
	}
	m.periodUs = 1e6 / cfg.SampleRateHz
	m.configured = true
	return nil
}

func (m *McpStreamADC) RegisterCallbacks(cbs core.StreamCallbacks) error {
	if m.running {
		return errRunning
	}
	m.cbs = cbs
	return nil
}

func (m *McpStreamADC) Flush() error {
	m.pool.Reset()
	return nil
}

func (m *McpStreamADC) Start() error {
	switch {
	case !m.configured:
		return errNotConfigured
	case m.running:
		return errRunning
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sample(m.stop, m.done)
	return nil
}

func (m *McpStreamADC) Stop() error {
	if !m.running {
		return nil
	}
	close(m.stop)
	<-m.done
	m.running = false
	return nil
}

func (m *McpStreamADC) Read(buf []byte, timeout time.Duration) (int, error) {
	deadline := core.NowMicros() + uint64(timeout/time.Microsecond)
	for m.pool.Available() < len(buf) {
		if timeout > 0 && core.NowMicros() >= deadline {
			return m.pool.Read(buf), core.ErrTimeout
		}
		time.Sleep(readPoll)
	}
	return m.pool.Read(buf), nil
}

func (m *McpStreamADC) Deinit() error {
	if err := m.Stop(); err != nil {
		return err
	}
	m.configured = false
	m.pool.Reset()
	return nil
}

// sample converts on a fixed schedule and pushes whole frames. When SPI
// cannot keep up the schedule slips and the shortfall shows in the ratio.
func (m *McpStreamADC) sample(stop, done chan struct{}) {
	defer close(done)

	frame := make([]byte, m.frameBytes)
	fill := 0
	ch := 0
	start := float64(core.NowMicros())
	n := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		due := uint64(start + float64(n)*m.periodUs)
		if now := core.NowMicros(); now < due {
			if due-now > 2*uint64(readPoll/time.Microsecond) {
				time.Sleep(readPoll)
			} else {
				runtime.Gosched()
			}
			continue
		}

		v, err := m.dev.Read(m.channels[ch])
		if err != nil {
			core.LogWarn(core.LogTag, "mcp3008 read: "+err.Error())
		}
		n++
		ch++
		if ch == len(m.channels) {
			ch = 0
		}

		frame[fill] = byte(v)
		frame[fill+1] = byte(v >> 8)
		fill += core.BytesPerSample
		if fill < len(frame) {
			continue
		}
		fill = 0
		if m.pool.Push(frame) {
			if m.cbs.OnConvDone != nil {
				m.cbs.OnConvDone(uint32(len(frame)))
			}
		} else if m.cbs.OnPoolOverflow != nil {
			m.cbs.OnPoolOverflow()
		}
	}
}
