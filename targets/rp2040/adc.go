//go:build rp2040 && !mcp3008

package main

import (
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"
	"time"

	"adcrate/core"
)

// The SAR ADC runs from the 48 MHz USB PLL and needs 96 cycles per
// conversion. DIV.INT is 16 bits wide.
const (
	adcClockHz       = 48000000
	adcCyclesPerConv = 96
	adcDivIntMax     = 0xffff

	sampleFreqThresLow  = float64(adcClockHz) / (adcDivIntMax + 1)
	sampleFreqThresHigh = float64(adcClockHz) / adcCyclesPerConv

	// AIN0-AIN3 plus the temperature sensor
	adcInputs = 5

	// FIFO level that raises the interrupt
	adcFifoThresh = 2

	readPoll = 100 * time.Microsecond
)

var defaultChannel = core.ChannelPattern{Unit: 0, Channel: 0, Atten: core.Atten0dB, BitWidth: 12}

var adcPins = [...]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}

var (
	errRateRange     = errors.New("adc: sample rate out of range")
	errChannel       = errors.New("adc: unsupported channel")
	errNoChannels    = errors.New("adc: no active channels")
	errRunning       = errors.New("adc: conversion running")
	errNotConfigured = errors.New("adc: not configured")
)

// activeADC is the driver the FIFO interrupt feeds
var activeADC *RpStreamADC

// RpStreamADC streams free-running conversions into a sample pool.
// The FIFO interrupt packs samples into transfer frames and pushes whole
// frames; a frame that does not fit is dropped and reported as an overflow.
type RpStreamADC struct {
	cbs  core.StreamCallbacks
	pool *core.SamplePool

	// Owned by the interrupt handler while running
	frame []byte
	fill  int

	intr       interrupt.Interrupt
	configured bool
	running    bool
}

func newStreamADC() core.StreamDriver {
	machine.InitADC()
	a := &RpStreamADC{
		pool:  core.NewSamplePool(core.DefaultPoolBytes),
		frame: make([]byte, core.DefaultTransferBytes),
	}
	a.intr = interrupt.New(rp.IRQ_ADC_IRQ_FIFO, adcFifoIRQ)
	activeADC = a
	return a
}

func adcFifoIRQ(interrupt.Interrupt) {
	if a := activeADC; a != nil {
		a.drainFIFO()
	}
}

// clockDivider returns the DIV register value for rateHz. Conversions start
// every 1 + INT + FRAC/256 cycles.
func clockDivider(rateHz float64) uint32 {
	fix := uint32((float64(adcClockHz)/rateHz-1)*256 + 0.5)
	return fix & (rp.ADC_DIV_INT_Msk | rp.ADC_DIV_FRAC_Msk)
}

func enableInput(ch uint8) error {
	if ch == adcInputs-1 {
		rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
		return nil
	}
	adc := machine.ADC{Pin: adcPins[ch]}
	return adc.Configure(machine.ADCConfig{})
}

func (a *RpStreamADC) Configure(cfg core.StreamConfig) error {
	switch {
	case a.running:
		return errRunning
	case len(cfg.Patterns) == 0:
		return errNoChannels
	case cfg.SampleRateHz < sampleFreqThresLow || cfg.SampleRateHz > sampleFreqThresHigh:
		return errRateRange
	}

	var rrobin uint32
	for _, p := range cfg.Patterns {
		if p.Channel >= adcInputs {
			return errChannel
		}
		if err := enableInput(p.Channel); err != nil {
			return err
		}
		rrobin |= 1 << p.Channel
	}
	if len(cfg.Patterns) == 1 {
		rrobin = 0
	}

	first := uint32(cfg.Patterns[0].Channel)
	rp.ADC.CS.ReplaceBits(first<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.ReplaceBits(rrobin<<rp.ADC_CS_RROBIN_Pos, rp.ADC_CS_RROBIN_Msk, 0)
	rp.ADC.DIV.Set(clockDivider(cfg.SampleRateHz))
	rp.ADC.FCS.Set(rp.ADC_FCS_EN | adcFifoThresh<<rp.ADC_FCS_THRESH_Pos)

	a.configured = true
	return nil
}

func (a *RpStreamADC) RegisterCallbacks(cbs core.StreamCallbacks) error {
	if a.running {
		return errRunning
	}
	a.cbs = cbs
	return nil
}

func (a *RpStreamADC) Flush() error {
	a.pool.Reset()
	return nil
}

func (a *RpStreamADC) Start() error {
	switch {
	case !a.configured:
		return errNotConfigured
	case a.running:
		return errRunning
	}

	a.fill = 0
	drainHardwareFIFO()
	// OVER and UNDER are write-one-to-clear
	rp.ADC.FCS.SetBits(rp.ADC_FCS_OVER | rp.ADC_FCS_UNDER)

	a.running = true
	rp.ADC.INTE.Set(rp.ADC_INTE_FIFO)
	a.intr.Enable()
	rp.ADC.CS.SetBits(rp.ADC_CS_START_MANY)
	return nil
}

func (a *RpStreamADC) Stop() error {
	if !a.running {
		return nil
	}
	rp.ADC.CS.ClearBits(rp.ADC_CS_START_MANY)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	rp.ADC.INTE.Set(0)
	a.intr.Disable()
	a.running = false

	drainHardwareFIFO()
	a.fill = 0
	return nil
}

// Read polls the pool until len(buf) bytes are there or timeout elapses.
func (a *RpStreamADC) Read(buf []byte, timeout time.Duration) (int, error) {
	deadline := core.NowMicros() + uint64(timeout/time.Microsecond)
	for a.pool.Available() < len(buf) {
		if timeout > 0 && core.NowMicros() >= deadline {
			return a.pool.Read(buf), core.ErrTimeout
		}
		time.Sleep(readPoll)
	}
	return a.pool.Read(buf), nil
}

func (a *RpStreamADC) Deinit() error {
	if err := a.Stop(); err != nil {
		return err
	}
	rp.ADC.FCS.Set(0)
	rp.ADC.CS.ClearBits(rp.ADC_CS_TS_EN)
	a.configured = false
	activeADC = nil
	a.pool.Reset()
	return nil
}

// drainFIFO runs in interrupt context.
func (a *RpStreamADC) drainFIFO() {
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		v := rp.ADC.FIFO.Get() & rp.ADC_FIFO_VAL_Msk
		a.frame[a.fill] = byte(v)
		a.frame[a.fill+1] = byte(v >> 8)
		a.fill += core.BytesPerSample
		if a.fill < len(a.frame) {
			continue
		}
		a.fill = 0
		if a.pool.Push(a.frame) {
			if a.cbs.OnConvDone != nil {
				a.cbs.OnConvDone(uint32(len(a.frame)))
			}
		} else if a.cbs.OnPoolOverflow != nil {
			a.cbs.OnPoolOverflow()
		}
	}

	// The hardware FIFO itself overran before we got to it
	if rp.ADC.FCS.HasBits(rp.ADC_FCS_OVER) {
		rp.ADC.FCS.SetBits(rp.ADC_FCS_OVER)
		if a.cbs.OnPoolOverflow != nil {
			a.cbs.OnPoolOverflow()
		}
	}
}

func drainHardwareFIFO() {
	for rp.ADC.FCS.Get()&rp.ADC_FCS_LEVEL_Msk != 0 {
		rp.ADC.FIFO.Get()
	}
}
