package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a console logger at level, tee'd as JSON to logFile when set
func NewLogger(w io.Writer, level zerolog.Level, logFile string) zerolog.Logger {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	if logFile != "" {
		output = zerolog.MultiLevelWriter(output, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    1,
			MaxBackups: 3,
		})
	}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", "savestash").
		Logger()
}

// LogLevelFromString parses a string to a zerolog.Level
func LogLevelFromString(levelStr string) (zerolog.Level, error) {
	return zerolog.ParseLevel(strings.ToLower(levelStr))
}
