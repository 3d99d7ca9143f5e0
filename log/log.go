package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

const consoleTimeFormat = "15:04:05"

// IsVerbose is set by the root command when --verbose is given
var IsVerbose bool

var std = zerolog.New(os.Stderr).With().Timestamp().Logger()

// New builds a logger writing to out. The text format is meant for people reading a
// terminal, the json format emits one object per line.
func New(out io.Writer, format string, verbose bool) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		cw := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: consoleTimeFormat,
			NoColor:    !isTerminal(out),
		}
		return zerolog.New(cw).With().Timestamp().Logger().Level(level), nil
	case FormatJSON:
		return zerolog.New(out).With().Timestamp().Logger().Level(level), nil
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
}

// SetDefault replaces the logger used by the package level helpers
func SetDefault(l zerolog.Logger) {
	std = l
}

// Default returns the logger used by the package level helpers
func Default() zerolog.Logger {
	return std
}

func Info(s string, args ...any) {
	std.Info().Msg(format(s, args))
}

func Warn(s string, args ...any) {
	std.Warn().Msg(format(s, args))
}

func Error(s string, args ...any) {
	std.Error().Msg(format(s, args))
}

func Verbose(s string, args ...any) {
	if IsVerbose {
		std.Debug().Msg(format(s, args))
	}
}

func format(s string, args []any) string {
	if len(args) > 0 {
		return strings.TrimRight(fmt.Sprintf(s, args...), "\n")
	}
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
