package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

// fakeStream is a scripted StreamDriver running on a virtual clock.
// Each Read advances the clock by exactly the time the requested bytes take
// at the configured rate, and frame completions are signalled per full frame.
type fakeStream struct {
	cbs   StreamCallbacks
	frame uint32

	rateHz  float64
	clockS  float64
	startUs float64 // latency before the first sample after every Start
	latency float64

	// chunk decides how many of the wanted bytes one Read returns.
	chunk func(want int) int

	// overflows[i] notifications fire during step i.
	overflows []int

	failOp   string
	failStep int
	failErr  error

	step       int
	pending    uint32
	running    bool
	reads      []int
	configured []StreamConfig
	flushes    int
	deinit     bool
}

func newFakeStream(frame uint32) *fakeStream {
	return &fakeStream{frame: frame, step: -1}
}

func (f *fakeStream) now() uint64 {
	return uint64(math.Round(f.clockS * 1e6))
}

func (f *fakeStream) fail(op string) error {
	if f.failOp == op && f.failStep == f.step {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("injected " + op + " failure")
	}
	return nil
}

func (f *fakeStream) Configure(cfg StreamConfig) error {
	f.step++
	f.configured = append(f.configured, cfg)
	f.rateHz = cfg.SampleRateHz
	return f.fail("configure")
}

func (f *fakeStream) RegisterCallbacks(cbs StreamCallbacks) error {
	f.cbs = cbs
	return nil
}

func (f *fakeStream) Flush() error {
	f.flushes++
	f.pending = 0
	return f.fail("flush")
}

func (f *fakeStream) Start() error {
	if err := f.fail("start"); err != nil {
		return err
	}
	f.running = true
	f.latency = f.startUs * 1e-6
	if f.step < len(f.overflows) {
		for i := 0; i < f.overflows[f.step]; i++ {
			f.cbs.OnPoolOverflow()
		}
	}
	return nil
}

func (f *fakeStream) Stop() error {
	f.running = false
	return f.fail("stop")
}

func (f *fakeStream) Read(buf []byte, timeout time.Duration) (int, error) {
	if err := f.fail("read"); err != nil {
		return 0, err
	}
	n := len(buf)
	if f.chunk != nil {
		n = f.chunk(n)
	}
	f.reads = append(f.reads, n)
	f.clockS += f.latency + float64(n/BytesPerSample)/f.rateHz
	f.latency = 0
	f.pending += uint32(n)
	for f.pending >= f.frame {
		f.pending -= f.frame
		f.cbs.OnConvDone(f.frame)
	}
	return n, nil
}

func (f *fakeStream) Deinit() error {
	f.deinit = true
	return nil
}

func newTestController(t *testing.T, drv *fakeStream, cfg SweepConfig) *Controller {
	t.Helper()
	c, err := NewController(drv, cfg)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	c.now = drv.now
	return c
}

func testSweepConfig(start, end float64) SweepConfig {
	cfg := DefaultSweepConfig(start, end, ChannelPattern{Unit: 1, Channel: 6, Atten: Atten6dB, BitWidth: 12})
	return cfg
}

func TestCaptureStepSingleRate(t *testing.T) {
	drv := newFakeStream(DefaultTransferBytes)
	var rows []SweepResult
	c := newTestController(t, drv, testSweepConfig(1000, 1001))

	steps, err := c.RunSweep(ReporterFunc(func(res SweepResult) error {
		rows = append(rows, res)
		return nil
	}))
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}

	if steps != 1 || len(rows) != 1 {
		t.Fatalf("Expected exactly 1 step, got %d (rows %d)", steps, len(rows))
	}
	if rows[0].ConfiguredHz != 1000 {
		t.Errorf("Expected configured rate 1000, got %f", rows[0].ConfiguredHz)
	}
	if rows[0].TargetBytes != 2048 {
		t.Errorf("Expected 2000 bytes rounded up to 2048, got %d", rows[0].TargetBytes)
	}
	if len(drv.reads) != 2 || drv.reads[0] != 1024 || drv.reads[1] != 1024 {
		t.Errorf("Expected two reads of 1024 bytes, got %v", drv.reads)
	}
	if rows[0].Reads != 2 {
		t.Errorf("Expected result to record 2 reads, got %d", rows[0].Reads)
	}
	if rows[0].Samples != 1024 {
		t.Errorf("Expected 1024 samples from two frame notifications, got %d", rows[0].Samples)
	}
	if math.Abs(rows[0].Ratio-1) > 1e-6 {
		t.Errorf("Expected ratio 1 from an exact driver, got %f", rows[0].Ratio)
	}
	if drv.running {
		t.Error("Conversion still running after the step")
	}
	if len(drv.configured) != 1 || len(drv.configured[0].Patterns) != 1 {
		t.Errorf("Expected one configure call with one active channel, got %+v", drv.configured)
	}
}

func TestCaptureStepDrainsSubChunks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	drv := newFakeStream(DefaultTransferBytes)
	drv.chunk = func(want int) int {
		return 1 + rng.Intn(want)
	}
	c := newTestController(t, drv, testSweepConfig(5000, 5001))

	res, err := c.CaptureStep(5000)
	if err != nil {
		t.Fatalf("CaptureStep failed: %v", err)
	}

	total := 0
	for _, n := range drv.reads {
		if n > DefaultTransferBytes {
			t.Errorf("Read returned %d bytes, more than one transfer", n)
		}
		total += n
	}
	if uint32(total) != res.TargetBytes {
		t.Errorf("Reads sum to %d, expected exactly %d", total, res.TargetBytes)
	}
	if res.TargetBytes != 10240 {
		t.Errorf("Expected 10000 bytes rounded to 10240, got %d", res.TargetBytes)
	}
	if res.Reads != len(drv.reads) {
		t.Errorf("Expected %d reads recorded, got %d", len(drv.reads), res.Reads)
	}
	t.Logf("drained %d bytes in %d partial reads", total, len(drv.reads))
}

func TestCaptureStepLastReadIsShort(t *testing.T) {
	// A transfer larger than the target forces a single short read.
	drv := newFakeStream(512)
	cfg := testSweepConfig(1000, 1001)
	cfg.TransferBytes = 512
	cfg.Capture = 100 * time.Millisecond
	c := newTestController(t, drv, cfg)

	res, err := c.CaptureStep(1000)
	if err != nil {
		t.Fatalf("CaptureStep failed: %v", err)
	}
	if res.TargetBytes != 512 {
		t.Errorf("Expected 200 bytes rounded to 512, got %d", res.TargetBytes)
	}
	if len(drv.reads) != 1 || drv.reads[0] != 512 {
		t.Errorf("Expected one read of 512 bytes, got %v", drv.reads)
	}
}

func TestOverflowAccountingResetsPerStep(t *testing.T) {
	drv := newFakeStream(DefaultTransferBytes)
	drv.overflows = []int{3, 0, 5}
	// 1000, 2000, 4000 Hz
	cfg := testSweepConfig(1000, 5000)
	cfg.Growth = 2
	c := newTestController(t, drv, cfg)

	var got []uint32
	steps, err := c.RunSweep(ReporterFunc(func(res SweepResult) error {
		got = append(got, res.Overflows)
		return nil
	}))
	if err != nil {
		t.Fatalf("RunSweep failed: %v", err)
	}
	if steps != 3 {
		t.Fatalf("Expected 3 steps, got %d", steps)
	}
	expected := []uint32{3, 0, 5}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Step %d: expected %d overflows, got %d", i, expected[i], got[i])
		}
	}
	if drv.flushes != 3 {
		t.Errorf("Expected the pool to be flushed before each of 3 steps, got %d", drv.flushes)
	}
}

func TestRatioConvergesWithDuration(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		time.Second,
		10 * time.Second,
		100 * time.Second,
	}
	const startUs = 2000
	prevErr := math.Inf(1)
	for _, d := range durations {
		drv := newFakeStream(DefaultTransferBytes)
		drv.startUs = startUs
		cfg := testSweepConfig(20000, 20001)
		cfg.Capture = d
		c := newTestController(t, drv, cfg)

		res, err := c.CaptureStep(20000)
		if err != nil {
			t.Fatalf("CaptureStep(%v) failed: %v", d, err)
		}
		if res.Overflows != 0 {
			t.Errorf("Expected no overflows, got %d", res.Overflows)
		}
		e := math.Abs(1 - res.Ratio)
		if e == 0 {
			t.Errorf("Expected the start latency to show up in the ratio at %v", d)
		}
		if !(e < prevErr) {
			t.Errorf("Ratio error did not shrink at %v: %g >= %g", d, e, prevErr)
		}
		// The capture covers at least d, so the latency costs at most startUs/d.
		if bound := startUs * 1e-6 / d.Seconds(); e > bound {
			t.Errorf("Ratio error %g at %v above %g", e, d, bound)
		}
		prevErr = e
		t.Logf("duration %v: ratio %.6f", d, res.Ratio)
	}
	if prevErr > 1e-4 {
		t.Errorf("Expected ratio within 1e-4 of 1 for the longest capture, off by %g", prevErr)
	}
}

func TestDriverErrorAbortsSweep(t *testing.T) {
	for _, op := range []string{"configure", "flush", "start", "read", "stop"} {
		t.Run(op, func(t *testing.T) {
			drv := newFakeStream(DefaultTransferBytes)
			drv.failOp = op
			drv.failStep = 1
			cfg := testSweepConfig(1000, 10000)
			cfg.Growth = 2
			c := newTestController(t, drv, cfg)

			reported := 0
			steps, err := c.RunSweep(ReporterFunc(func(SweepResult) error {
				reported++
				return nil
			}))
			if err == nil {
				t.Fatal("Expected sweep to fail")
			}
			if !errors.Is(err, ErrDriver) {
				t.Errorf("Expected error to match ErrDriver, got %v", err)
			}
			var derr *DriverError
			if !errors.As(err, &derr) {
				t.Fatalf("Expected *DriverError, got %T", err)
			}
			if derr.Op != op {
				t.Errorf("Expected failing op %q, got %q", op, derr.Op)
			}
			if derr.RateHz != 2000 {
				t.Errorf("Expected failure at 2000 Hz, got %f", derr.RateHz)
			}
			if steps != 1 || reported != 1 {
				t.Errorf("Expected 1 completed step before the failure, got %d (reported %d)", steps, reported)
			}
			if len(drv.configured) != 2 {
				t.Errorf("Expected no step after the failing one, got %d configure calls", len(drv.configured))
			}
		})
	}
}

func TestReadTimeoutSurfaces(t *testing.T) {
	drv := newFakeStream(DefaultTransferBytes)
	drv.failOp = "read"
	drv.failStep = 0
	drv.failErr = ErrTimeout
	c := newTestController(t, drv, testSweepConfig(1000, 1001))

	_, err := c.CaptureStep(1000)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, ErrDriver) {
		t.Errorf("Expected timeout to also match ErrDriver, got %v", err)
	}
	if drv.running {
		t.Error("Expected conversion to be stopped after a failed read")
	}
}

func TestControllerClose(t *testing.T) {
	drv := newFakeStream(DefaultTransferBytes)
	c := newTestController(t, drv, testSweepConfig(1000, 1001))
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !drv.deinit {
		t.Error("Expected Close to deinit the driver")
	}
}

func TestReporterErrorStopsSweep(t *testing.T) {
	drv := newFakeStream(DefaultTransferBytes)
	cfg := testSweepConfig(1000, 10000)
	c := newTestController(t, drv, cfg)

	stop := errors.New("disk full")
	steps, err := c.RunSweep(ReporterFunc(func(SweepResult) error { return stop }))
	if !errors.Is(err, stop) {
		t.Errorf("Expected reporter error, got %v", err)
	}
	if steps != 0 {
		t.Errorf("Expected 0 completed steps, got %d", steps)
	}
}
