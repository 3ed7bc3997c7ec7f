// Package logging builds zerolog loggers for the node and relay processes.
// It follows the teacher's internal/log console/JSON writer split
// (NewConsoleLogger/NewJSONLogger), but — per spec.md §9's note against
// global mutable singletons — never exposes a package-level logger: every
// caller builds its own and passes it explicitly into the component
// constructors that need one.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Klingon-tech/klingnet-pos/config"
)

// New builds a logger from a config.LogConfig. When File is set, output goes
// both to that file, rotated via lumberjack and always JSON-formatted, and to
// stdout, colored unless JSON is requested; otherwise output goes to stdout
// only, colored unless JSON is requested.
func New(cfg config.LogConfig) zerolog.Logger {
	level := parseLevel(cfg.Level)

	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxOr(cfg.MaxSizeMB, 100),
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		var consoleWriter io.Writer = os.Stdout
		if !cfg.JSON {
			consoleWriter = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		}
		multi := zerolog.MultiLevelWriter(consoleWriter, fileWriter)
		return zerolog.New(multi).Level(level).With().Timestamp().Logger()
	}

	if cfg.JSON {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	return NewConsoleLogger(os.Stdout, level)
}

// NewConsoleLogger builds a colored console logger writing to w.
func NewConsoleLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
