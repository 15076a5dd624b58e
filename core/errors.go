package core

import "errors"

var (
	ErrDriver       = errors.New("adc driver failure")
	ErrTimeout      = errors.New("adc read timed out")
	ErrInvalidSweep = errors.New("invalid sweep configuration")
)

// DriverError records which driver operation failed during a capture.
type DriverError struct {
	Op     string
	RateHz float64
	Err    error
}

func (e *DriverError) Error() string {
	if e.Err == nil {
		return "adc " + e.Op + ": " + ErrDriver.Error()
	}
	return "adc " + e.Op + ": " + e.Err.Error()
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Is makes every DriverError match ErrDriver in addition to its cause.
func (e *DriverError) Is(target error) bool {
	return target == ErrDriver
}

func driverError(op string, rateHz float64, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, RateHz: rateHz, Err: err}
}

func invalidSweep(reason string) error {
	return &sweepError{reason: reason}
}

type sweepError struct {
	reason string
}

func (e *sweepError) Error() string {
	return ErrInvalidSweep.Error() + ": " + e.reason
}

func (e *sweepError) Unwrap() error {
	return ErrInvalidSweep
}
