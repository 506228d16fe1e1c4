// Package corelog wraps github.com/charmbracelet/log into the five
// CLI log levels spec.md §6's --log/-l flag names, replacing the
// teacher's hand-rolled ANSI dispatcher (src/textcolor.go's
// text_color_set/dw_printf pair) with a proper leveled, structured
// logger. Every component takes a *log.Logger explicitly (no package
// globals), per spec.md §9's "Globals → explicit contexts" redesign
// flag.
package corelog

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// CLILevel is one of the five levels the --log/-l flag accepts.
type CLILevel string

const (
	Trace CLILevel = "trace"
	Info  CLILevel = "info"
	Warn  CLILevel = "warn"
	Error CLILevel = "error"
	None  CLILevel = "none"
)

// ParseCLILevel maps a --log flag value to a CLILevel, defaulting to
// Info on an empty string and erroring on anything unrecognized.
func ParseCLILevel(s string) (CLILevel, error) {
	switch CLILevel(s) {
	case "", Info:
		return Info, nil
	case Trace, Warn, Error, None:
		return CLILevel(s), nil
	default:
		return "", fmt.Errorf("corelog: unknown log level %q (want trace|info|warn|error|none)", s)
	}
}

// New builds a *log.Logger writing to w at the given CLI level. None
// discards all output; every other level maps onto charmbracelet/log's
// Debug..Fatal scale (Trace is carried as Debug — charmbracelet/log has
// no level below Debug).
func New(w io.Writer, level CLILevel) *log.Logger {
	if level == None {
		w = io.Discard
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	switch level {
	case Trace:
		logger.SetLevel(log.DebugLevel)
	case Warn:
		logger.SetLevel(log.WarnLevel)
	case Error:
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// Default builds a stderr logger at Info level, used where no
// CoreConfig has been loaded yet (e.g. early flag-parsing errors).
func Default() *log.Logger {
	return New(os.Stderr, Info)
}
