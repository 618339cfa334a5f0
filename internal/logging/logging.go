// Package logging builds the structured logger every leech command shares:
// log/slog writing to workdir/leech.log through a rotating
// gopkg.in/natefinch/lumberjack.v2 writer, at a level selected by the
// top-level --debug/--info/--verbose flags (spec §6).
package logging

import (
	"log/slog"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level names the three log-level flags of spec §6, lowest to highest
// verbosity. The default (no flag) is Warn.
type Level int

const (
	Warn Level = iota
	Info
	Debug
)

// New returns a slog.Logger writing JSON records to workdir/leech.log,
// rotated by lumberjack, at the given level. cmd is attached to every
// record so different commands can be told apart in the log file; a table
// attribute appears only on the records whose call site adds one.
func New(workdir, cmd string, level Level) *slog.Logger {
	w := &lumberjack.Logger{
		Filename:   filepath.Join(workdir, "leech.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	var slogLevel slog.Level
	switch level {
	case Debug:
		slogLevel = slog.LevelDebug
	case Info:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelWarn
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})
	return slog.New(h).With(slog.String("cmd", cmd))
}
