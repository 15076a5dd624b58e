package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"adcrate/core"
	"adcrate/host/serial"
	"adcrate/host/sim"
)

// SweepConfig is the YAML form of core.SweepConfig. Zero rates mean
// "use the driver's limits".
type SweepConfig struct {
	StartHz       float64         `yaml:"start_hz"`
	EndHz         float64         `yaml:"end_hz"`
	Growth        float64         `yaml:"growth"`
	Capture       time.Duration   `yaml:"capture"`
	TransferBytes uint32          `yaml:"transfer_bytes"`
	ReadTimeout   time.Duration   `yaml:"read_timeout"`
	Channels      []ChannelConfig `yaml:"channels"`
}

// ChannelConfig is one active channel of the conversion pattern
type ChannelConfig struct {
	Unit     uint8  `yaml:"unit"`
	Channel  uint8  `yaml:"channel"`
	AttenDB  string `yaml:"atten"`
	BitWidth uint8  `yaml:"bit_width"`
}

// OutputConfig controls where results go besides stdout
type OutputConfig struct {
	ParquetDir string `yaml:"parquet_dir"`
	BatchSize  int    `yaml:"batch_size"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Listen string `yaml:"listen"`

	// Source labels metrics and names the Parquet file; empty uses the
	// command's default ("board" or "sim").
	Source string `yaml:"source"`
}

// SourceOr returns the configured source label, or def when none is set
func (m MetricsConfig) SourceOr(def string) string {
	if m.Source != "" {
		return m.Source
	}
	return def
}

// Config is the top-level configuration of adcrate-host
type Config struct {
	Serial  serial.Config `yaml:"serial"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Sim     sim.Config    `yaml:"sim"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Serial: *serial.DefaultConfig("/dev/ttyACM0"),
		Sweep: SweepConfig{
			Growth:        core.DefaultGrowth,
			Capture:       core.DefaultCapture,
			TransferBytes: core.DefaultTransferBytes,
			ReadTimeout:   core.DefaultReadTimeout,
			Channels:      []ChannelConfig{{Unit: 1, Channel: 6, AttenDB: "6", BitWidth: 12}},
		},
		Sim:    sim.DefaultConfig(),
		Output: OutputConfig{BatchSize: 16},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}

// SweepFor builds the core sweep configuration, taking missing rates from
// the driver's limits.
func (c *Config) SweepFor(lowHz, highHz float64) (core.SweepConfig, error) {
	s := core.SweepConfig{
		StartHz:       c.Sweep.StartHz,
		EndHz:         c.Sweep.EndHz,
		Growth:        c.Sweep.Growth,
		Capture:       c.Sweep.Capture,
		TransferBytes: c.Sweep.TransferBytes,
		ReadTimeout:   c.Sweep.ReadTimeout,
	}
	if s.StartHz == 0 {
		s.StartHz = lowHz
	}
	if s.EndHz == 0 {
		s.EndHz = highHz
	}
	for i, ch := range c.Sweep.Channels {
		atten, err := parseAtten(ch.AttenDB)
		if err != nil {
			return core.SweepConfig{}, fmt.Errorf("channel %d: %w", i, err)
		}
		s.Patterns = append(s.Patterns, core.ChannelPattern{
			Unit:     ch.Unit,
			Channel:  ch.Channel,
			Atten:    atten,
			BitWidth: ch.BitWidth,
		})
	}
	if err := s.Validate(); err != nil {
		return core.SweepConfig{}, err
	}
	return s, nil
}

func parseAtten(db string) (core.Attenuation, error) {
	switch db {
	case "", "0":
		return core.Atten0dB, nil
	case "2.5":
		return core.Atten2p5dB, nil
	case "6":
		return core.Atten6dB, nil
	case "12":
		return core.Atten12dB, nil
	}
	return 0, fmt.Errorf("unsupported attenuation %q dB", db)
}
