package serial

import (
	"io"
)

// Port represents the link the board prints its report on.
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - Any io.ReadCloser, e.g. a capture file or a pipe in tests
type Port interface {
	io.ReadWriteCloser

	// Flush discards anything buffered on the link
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate (USB CDC ignores this)
	Baud int `yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `yaml:"read_timeout_ms"`
}

// DefaultConfig returns the configuration for a board on USB CDC
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 500,
	}
}
