// Package logging provides the leveled, per-subsystem loggers used
// throughout coreld, plus the bounded per-peer log ring described in the
// peer data model. It mirrors the shape of the teacher's logging package
// (one backend, one Logger per subsystem name) but is backed by
// btcsuite/btclog instead of the bare standard log package, the way the
// rest of the btcsuite-family nodes in the example pack do it.
package logging

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level re-exports btclog's level type so callers don't need to import
// btclog directly.
type Level = btclog.Level

const (
	LevelTrace    = btclog.LevelTrace
	LevelDebug    = btclog.LevelDebug
	LevelInfo     = btclog.LevelInfo
	LevelWarn     = btclog.LevelWarn
	LevelError    = btclog.LevelError
	LevelCritical = btclog.LevelCritical
	LevelOff      = btclog.LevelOff
)

var backend = btclog.NewBackend(consoleWriter())

func consoleWriter() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return colorable.NewColorableStdout()
	}
	return os.Stdout
}

// New returns a leveled logger for the given subsystem, defaulting to
// LevelInfo. Subsystem names mirror the teacher's per-component logging
// ("qln", "lnp2p", ...): "peerreg", "channel", "supervisor", "fundwatch",
// "closecoord", "control", "rpc".
func New(subsystem string) btclog.Logger {
	l := backend.Logger(subsystem)
	l.SetLevel(LevelInfo)
	return l
}

// SetLevel sets the level of the one logger passed to it. Loggers created
// via New are not tracked, so other loggers keep their own level. This
// helper exists for the common case of applying one verbosity flag at
// startup.
func SetLevel(l btclog.Logger, level Level) {
	l.SetLevel(level)
}

// severityTag renders a short colorized tag for mirrored high-severity
// entries, so a human watching the parent process log can pick broken and
// fatal entries out of the scroll at a glance.
func severityTag(level Level) string {
	switch level {
	case LevelCritical:
		return color.New(color.FgRed, color.Bold).Sprint("[BROKEN]")
	case LevelError:
		return color.New(color.FgRed).Sprint("[ERROR]")
	case LevelWarn:
		return color.New(color.FgYellow).Sprint("[WARN]")
	default:
		return ""
	}
}
