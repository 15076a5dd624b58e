package core

// SamplePool is the driver-side ring of conversion results waiting to be read.
// The producer is usually an interrupt handler pushing whole frames, the
// consumer is the sweep reading through StreamDriver.Read.
// All methods enter a critical section, so they are safe to call from
// either side. Copies are at most two contiguous segments, so the time
// spent with interrupts masked stays short.
type SamplePool struct {
	buf   []byte
	read  int
	count int
}

// NewSamplePool creates a pool that holds exactly capacity bytes.
func NewSamplePool(capacity int) *SamplePool {
	return &SamplePool{buf: make([]byte, capacity)}
}

// Push stores frame only if all of it fits. It returns false when the pool
// is too full, in which case nothing is stored and the caller should report
// an overflow.
func (p *SamplePool) Push(frame []byte) bool {
	state := enterCritical()
	defer exitCritical(state)

	if len(frame) > len(p.buf)-p.count {
		return false
	}
	write := p.wrap(p.read + p.count)
	n := copy(p.buf[write:], frame)
	copy(p.buf, frame[n:])
	p.count += len(frame)
	return true
}

// Read copies up to len(data) bytes out of the pool.
func (p *SamplePool) Read(data []byte) int {
	state := enterCritical()
	defer exitCritical(state)

	want := len(data)
	if want > p.count {
		want = p.count
	}
	end := p.read + want
	if end > len(p.buf) {
		end = len(p.buf)
	}
	n := copy(data[:want], p.buf[p.read:end])
	n += copy(data[n:want], p.buf)
	p.read = p.wrap(p.read + n)
	p.count -= n
	return n
}

// Available returns the number of bytes waiting to be read.
func (p *SamplePool) Available() int {
	state := enterCritical()
	defer exitCritical(state)
	return p.count
}

// Free returns the number of bytes that can still be pushed.
func (p *SamplePool) Free() int {
	state := enterCritical()
	defer exitCritical(state)
	return len(p.buf) - p.count
}

// Cap returns the usable capacity in bytes.
func (p *SamplePool) Cap() int {
	return len(p.buf)
}

// Reset drops everything buffered.
func (p *SamplePool) Reset() {
	state := enterCritical()
	p.read = 0
	p.count = 0
	exitCritical(state)
}

// wrap folds an index in [0, 2*cap) back into the ring without dividing.
func (p *SamplePool) wrap(i int) int {
	if i >= len(p.buf) {
		i -= len(p.buf)
	}
	return i
}
