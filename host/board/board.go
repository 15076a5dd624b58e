package board

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"adcrate/core"
	"adcrate/host/serial"
)

var (
	// ErrBoardFailed is returned when the firmware logs an error or panics
	// before finishing the sweep.
	ErrBoardFailed = errors.New("board aborted the sweep")

	// ErrNoResults is returned when the stream ends without a single row.
	ErrNoResults = errors.New("no sweep results received")
)

// LineKind classifies one line of the board's output
type LineKind int

const (
	LineOther LineKind = iota
	LineHeader
	LineRow
	LineLog
	LinePanic
)

// Line is one parsed line of the board's output
type Line struct {
	Kind LineKind
	Text string

	// LineRow
	Result core.SweepResult

	// LineLog
	Level    core.LogLevel
	UptimeMs uint64
	Tag      string
	Message  string
}

// IsHeartbeat reports whether the line is the idle-loop heartbeat.
func (l Line) IsHeartbeat() bool {
	return l.Kind == LineLog && l.Level == core.LevelInfo && l.Message == "zzz"
}

// ParseLine classifies a single line printed by the firmware
func ParseLine(text string) Line {
	text = strings.TrimRight(text, "\r\n")
	line := Line{Kind: LineOther, Text: text}

	switch {
	case text == core.ReportHeader:
		line.Kind = LineHeader
	case strings.HasPrefix(text, "panic:"):
		line.Kind = LinePanic
		line.Message = strings.TrimSpace(strings.TrimPrefix(text, "panic:"))
	default:
		if res, err := core.ParseRow(text); err == nil {
			line.Kind = LineRow
			line.Result = res
		} else if parseLogLine(text, &line) {
			line.Kind = LineLog
		}
	}
	return line
}

// parseLogLine understands "L (ms) TAG: message"
func parseLogLine(text string, line *Line) bool {
	if len(text) < 5 || text[1] != ' ' || text[2] != '(' {
		return false
	}
	level, ok := core.ParseLogLevel(text[0])
	if !ok {
		return false
	}
	end := strings.IndexByte(text, ')')
	if end < 0 {
		return false
	}
	ms, err := strconv.ParseUint(text[3:end], 10, 64)
	if err != nil {
		return false
	}
	rest := strings.TrimPrefix(text[end+1:], " ")
	tag, msg, found := strings.Cut(rest, ": ")
	if !found {
		return false
	}
	line.Level = level
	line.UptimeMs = ms
	line.Tag = tag
	line.Message = msg
	return true
}

// Board reads the report stream a board prints over its serial link
type Board struct {
	r      *bufio.Reader
	closer io.Closer

	// With a read timeout an idle serial line reads as io.EOF.
	idleEOF bool

	partial strings.Builder
	verbose bool
}

// Connect opens the board's serial port and drops anything already buffered
func Connect(cfg *serial.Config) (*Board, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	b := NewBoard(port, true)
	b.closer = port
	return b, nil
}

// NewBoard reads from r. When idleEOF is set, io.EOF only means that no
// data arrived within the port's read timeout.
func NewBoard(r io.Reader, idleEOF bool) *Board {
	return &Board{
		r:       bufio.NewReader(r),
		idleEOF: idleEOF,
	}
}

// SetVerbose echoes every board log line through the standard logger
func (b *Board) SetVerbose(v bool) {
	b.verbose = v
}

// Close closes the underlying port, if Connect opened it
func (b *Board) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// Next returns the next complete line
func (b *Board) Next(ctx context.Context) (Line, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Line{}, err
		}
		chunk, err := b.r.ReadString('\n')
		b.partial.WriteString(chunk)
		if err == nil {
			text := b.partial.String()
			b.partial.Reset()
			return ParseLine(text), nil
		}
		if errors.Is(err, io.EOF) && b.idleEOF {
			if chunk == "" {
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		if errors.Is(err, io.EOF) && b.partial.Len() > 0 {
			text := b.partial.String()
			b.partial.Reset()
			return ParseLine(text), nil
		}
		return Line{}, err
	}
}

// Collect hands every result row to rep until the board starts idling.
// It returns the number of rows received.
func (b *Board) Collect(ctx context.Context, rep core.Reporter) (int, error) {
	rows := 0
	for {
		line, err := b.Next(ctx)
		if errors.Is(err, io.EOF) {
			if rows == 0 {
				return 0, ErrNoResults
			}
			return rows, nil
		}
		if err != nil {
			return rows, err
		}

		switch line.Kind {
		case LineRow:
			if err := rep.Report(line.Result); err != nil {
				return rows, err
			}
			rows++
		case LinePanic:
			return rows, fmt.Errorf("%w: panic: %s", ErrBoardFailed, line.Message)
		case LineLog:
			if b.verbose {
				log.Printf("board: %s", line.Text)
			}
			if line.Level == core.LevelError {
				return rows, fmt.Errorf("%w: %s", ErrBoardFailed, line.Message)
			}
			if line.IsHeartbeat() {
				// Idling before any row means the sweep ran before we connected.
				if rows == 0 {
					return 0, ErrNoResults
				}
				return rows, nil
			}
		case LineHeader:
			if rows > 0 {
				log.Printf("board: header after %d rows, board restarted?", rows)
			}
		}
	}
}
