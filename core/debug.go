package core

// LogWriter is a function type for writing one complete log line (no newline)
type LogWriter func(string)

// LogLevel selects the prefix letter of a log line
type LogLevel uint8

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	// logWriter is the global log sink (can be set by platform code)
	logWriter LogWriter = func(s string) {} // No-op by default

	// logLevel drops everything more verbose than it
	logLevel = LevelInfo
)

// SetLogWriter sets the platform-specific log output function.
// This allows platforms to redirect logs to USB, UART, a host logger, etc.
func SetLogWriter(writer LogWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	logWriter = writer
}

// SetLogLevel changes the most verbose level that is still written
func SetLogLevel(level LogLevel) {
	logLevel = level
}

// LogError writes an error line, e.g. "E (1234) ADCrate: adc read: timeout"
func LogError(tag, msg string) {
	logLine(LevelError, tag, msg)
}

// LogWarn writes a warning line
func LogWarn(tag, msg string) {
	logLine(LevelWarn, tag, msg)
}

// LogInfo writes an informational line
func LogInfo(tag, msg string) {
	logLine(LevelInfo, tag, msg)
}

// LogDebug writes a debug line; dropped unless SetLogLevel(LevelDebug)
func LogDebug(tag, msg string) {
	logLine(LevelDebug, tag, msg)
}

func logLine(level LogLevel, tag, msg string) {
	if level > logLevel {
		return
	}
	logWriter(FormatLogLine(level, UptimeMillis(), tag, msg))
}

// FormatLogLine renders a line in the "L (ms) TAG: msg" layout.
func FormatLogLine(level LogLevel, uptimeMs uint64, tag, msg string) string {
	buf := make([]byte, 0, 16+len(tag)+len(msg))
	buf = append(buf, level.Letter(), ' ', '(')
	buf = appendUint(buf, uptimeMs)
	buf = append(buf, ')', ' ')
	buf = append(buf, tag...)
	buf = append(buf, ':', ' ')
	buf = append(buf, msg...)
	return string(buf)
}

// Letter returns the single-letter prefix used for level.
func (l LogLevel) Letter() byte {
	switch l {
	case LevelError:
		return 'E'
	case LevelWarn:
		return 'W'
	case LevelInfo:
		return 'I'
	default:
		return 'D'
	}
}

// ParseLogLevel maps a prefix letter back to its level.
func ParseLogLevel(letter byte) (LogLevel, bool) {
	switch letter {
	case 'E':
		return LevelError, true
	case 'W':
		return LevelWarn, true
	case 'I':
		return LevelInfo, true
	case 'D':
		return LevelDebug, true
	}
	return 0, false
}
