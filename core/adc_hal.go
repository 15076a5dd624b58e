package core

import "time"

// BytesPerSample is the width of one conversion result in the stream.
// Convention here: 16-bit words, even if the underlying hardware is 12 bits.
const BytesPerSample = 2

// MaxPatternLen bounds the number of entries in a conversion pattern.
const MaxPatternLen = 8

// Attenuation selects the input range of an ADC channel on parts that have one.
type Attenuation uint8

const (
	Atten0dB Attenuation = iota
	Atten2p5dB
	Atten6dB
	Atten12dB
)

// ChannelPattern is one active entry of the conversion pattern.
type ChannelPattern struct {
	Unit     uint8
	Channel  uint8
	Atten    Attenuation
	BitWidth uint8
}

// StreamConfig is what the sweep hands to the driver before each capture.
type StreamConfig struct {
	SampleRateHz float64
	Patterns     []ChannelPattern
}

// StreamCallbacks are invoked from interrupt (or driver-internal) context.
// They must not block or allocate.
type StreamCallbacks struct {
	// OnConvDone is called once per completed transfer frame with its size in bytes.
	OnConvDone func(size uint32)

	// OnPoolOverflow is called whenever the driver had to drop samples
	// because its internal pool was full.
	OnPoolOverflow func()
}

// StreamDriver is the abstract continuous-conversion interface the sweep uses.
type StreamDriver interface {
	// Configure sets the sample rate and the conversion pattern.
	// It is only called while conversion is stopped.
	Configure(cfg StreamConfig) error

	// RegisterCallbacks installs the completion and overflow notifications.
	RegisterCallbacks(cbs StreamCallbacks) error

	// Flush discards everything buffered in the driver's pool.
	Flush() error

	// Start begins continuous conversion.
	Start() error

	// Stop halts continuous conversion.
	Stop() error

	// Read copies up to len(buf) bytes of conversion results into buf.
	// It blocks until len(buf) bytes are available or timeout elapses.
	// A zero timeout waits forever. On timeout it returns an error
	// matching ErrTimeout together with whatever was read.
	Read(buf []byte, timeout time.Duration) (int, error)

	// Deinit releases the peripheral.
	Deinit() error
}
