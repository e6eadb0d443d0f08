package main

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/tts-proxy/internal/config"
	"golang.org/x/term"
)

// setupLog builds the process logger from the configured level and format.
// Text output falls back to logfmt when stderr is not a terminal.
func setupLog(cfg config.Config) *log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	switch {
	case cfg.LogFormat == "json":
		formatter = log.JSONFormatter
	case cfg.LogFormat == "logfmt", !term.IsTerminal(int(os.Stderr.Fd())):
		formatter = log.LogfmtFormatter
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	log.SetDefault(logger)
	return logger
}
