// Package logging builds the application logger. Output goes through hooks:
// a console sink plus rotating combined and error files.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls sinks and rotation.
type Config struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Suppress drops entries whose message contains any of these substrings.
	Suppress []string
	// Console defaults to stderr.
	Console io.Writer
}

// ParseLevel maps a configured level name to a logrus level, falling back to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// New returns a logger and a function that closes its file sinks.
// An empty Dir disables the file sinks.
func New(cfg Config) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(ParseLevel(cfg.Level))

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	logger.AddHook(newSinkHook(console, &logrus.TextFormatter{FullTimestamp: true}, logrus.AllLevels, cfg.Suppress))

	if cfg.Dir == "" {
		return logger, func() error { return nil }, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	combined := rotating(filepath.Join(cfg.Dir, "combined.log"), cfg)
	errorsLog := rotating(filepath.Join(cfg.Dir, "error.log"), cfg)

	logger.AddHook(newSinkHook(combined, &logrus.JSONFormatter{}, logrus.AllLevels, cfg.Suppress))
	logger.AddHook(newSinkHook(errorsLog, &logrus.JSONFormatter{}, levelsFrom(logrus.ErrorLevel), cfg.Suppress))

	closeFn := func() error {
		err := combined.Close()
		if e := errorsLog.Close(); e != nil && err == nil {
			err = e
		}
		return err
	}
	return logger, closeFn, nil
}

func rotating(path string, cfg Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
}

// levelsFrom returns min and every more severe level.
func levelsFrom(min logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, lvl := range logrus.AllLevels {
		if lvl <= min {
			levels = append(levels, lvl)
		}
	}
	return levels
}
