package core

// CaptureSession is the state of one configure/start/drain/stop cycle.
type CaptureSession struct {
	RateHz      float64
	TargetBytes uint32
	Remaining   uint32
	Reads       int

	StartMicros uint64
	EndMicros   uint64
}

// CaptureStep measures the delivered sample rate at one configured rate.
//
// The measured rate uses the sample count reported by the driver's
// frame-completion callback, not the number of bytes requested, so driver
// frame sizing and rate quantisation show up in the ratio.
func (c *Controller) CaptureStep(rateHz float64) (SweepResult, error) {
	err := c.drv.Configure(StreamConfig{SampleRateHz: rateHz, Patterns: c.cfg.Patterns})
	if err != nil {
		return SweepResult{}, driverError("configure", rateHz, err)
	}

	c.samples.Store(0)
	c.overflows.Store(0)
	if err := c.drv.Flush(); err != nil {
		return SweepResult{}, driverError("flush", rateHz, err)
	}

	if err := c.drv.Start(); err != nil {
		return SweepResult{}, driverError("start", rateHz, err)
	}
	s := CaptureSession{RateHz: rateHz, StartMicros: c.now()}

	s.TargetBytes = TargetBytes(rateHz, c.cfg.Capture, c.cfg.TransferBytes)
	s.Remaining = s.TargetBytes
	if err := c.drain(&s); err != nil {
		// The sweep is over anyway; leave the peripheral quiet if we can.
		_ = c.drv.Stop()
		return SweepResult{}, driverError("read", rateHz, err)
	}

	s.EndMicros = c.now()
	if err := c.drv.Stop(); err != nil {
		return SweepResult{}, driverError("stop", rateHz, err)
	}
	LogDebug(LogTag, "captured "+utoa(uint64(s.TargetBytes))+" bytes in "+
		utoa(uint64(s.Reads))+" reads at "+ftoa(rateHz, 1)+" Hz")

	return c.result(&s), nil
}

// drain reads until the session's byte target is exactly consumed.
func (c *Controller) drain(s *CaptureSession) error {
	for s.Remaining > 0 {
		want := c.cfg.TransferBytes
		if s.Remaining < want {
			want = s.Remaining
		}
		n, err := c.drv.Read(c.buf[:want], c.cfg.ReadTimeout)
		if n < 0 {
			n = 0
		} else if uint32(n) > want {
			n = int(want)
		}
		s.Remaining -= uint32(n)
		s.Reads++
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) result(s *CaptureSession) SweepResult {
	res := SweepResult{
		ConfiguredHz: s.RateHz,
		Samples:      c.samples.Load(),
		Overflows:    c.overflows.Load(),
		TargetBytes:  s.TargetBytes,
		Reads:        s.Reads,
	}
	if s.EndMicros > s.StartMicros {
		res.DurationUs = s.EndMicros - s.StartMicros
	}
	if res.DurationUs > 0 {
		res.MeasuredHz = float64(res.Samples) / (float64(res.DurationUs) * 1e-6)
	}
	res.Ratio = res.MeasuredHz / res.ConfiguredHz
	return res
}
