package core

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// ReportHeader is printed once, just before the first row.
const ReportHeader = "rConf/Hz\trMeas_Hz\tratio\tnOvf"

var ErrMalformedRow = errors.New("malformed report row")

// SweepResult is what one capture step produced.
type SweepResult struct {
	ConfiguredHz float64
	MeasuredHz   float64
	Ratio        float64
	Overflows    uint32

	// Not part of the printed row.
	Samples     uint64
	TargetBytes uint32
	Reads       int
	DurationUs  uint64
}

// Reporter receives each result as soon as its step finishes.
type Reporter interface {
	Report(res SweepResult) error
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(res SweepResult) error

func (f ReporterFunc) Report(res SweepResult) error {
	return f(res)
}

// MultiReporter hands each result to every reporter in order and stops at
// the first error.
type MultiReporter []Reporter

func (m MultiReporter) Report(res SweepResult) error {
	for _, r := range m {
		if err := r.Report(res); err != nil {
			return err
		}
	}
	return nil
}

// TextReporter prints the tab-separated table.
type TextReporter struct {
	w    io.Writer
	rows int
}

// NewTextReporter creates a TextReporter writing to w
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (t *TextReporter) Report(res SweepResult) error {
	if t.rows == 0 {
		if _, err := io.WriteString(t.w, ReportHeader+"\n"); err != nil {
			return err
		}
	}
	t.rows++
	_, err := t.w.Write(AppendRow(nil, res))
	return err
}

// Rows returns how many rows have been written.
func (t *TextReporter) Rows() int {
	return t.rows
}

// AppendRow appends one newline-terminated row: configured and measured
// rate with 3 decimals, ratio with 5, overflow count.
func AppendRow(buf []byte, res SweepResult) []byte {
	buf = appendFixed(buf, res.ConfiguredHz, 3)
	buf = append(buf, '\t')
	buf = appendFixed(buf, res.MeasuredHz, 3)
	buf = append(buf, '\t')
	buf = appendFixed(buf, res.Ratio, 5)
	buf = append(buf, '\t')
	buf = appendUint(buf, uint64(res.Overflows))
	return append(buf, '\n')
}

// FormatRow returns the row for res without the trailing newline.
func FormatRow(res SweepResult) string {
	row := AppendRow(nil, res)
	return string(row[:len(row)-1])
}

// ParseRow reads back a row printed by TextReporter. Only the four printed
// fields are filled in.
func ParseRow(line string) (SweepResult, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) != 4 {
		return SweepResult{}, ErrMalformedRow
	}
	var (
		res SweepResult
		err error
	)
	if res.ConfiguredHz, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return SweepResult{}, ErrMalformedRow
	}
	if res.MeasuredHz, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return SweepResult{}, ErrMalformedRow
	}
	if res.Ratio, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return SweepResult{}, ErrMalformedRow
	}
	ovf, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return SweepResult{}, ErrMalformedRow
	}
	res.Overflows = uint32(ovf)
	return res, nil
}
