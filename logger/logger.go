package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig configures a named hclog.Logger, optionally writing to a
// rotated log file instead of stderr.
type LoggerConfig struct {
	Name          string
	LogLevel      hclog.Level
	JSONLogFormat bool

	LogFilePath         string
	RotatingLogsEnabled bool
	MaxSizeMB           int
	MaxBackups          int
	MaxAgeDays          int
}

func NewLogger(config LoggerConfig) (hclog.Logger, error) {
	var output io.Writer = os.Stderr

	if config.RotatingLogsEnabled {
		if config.LogFilePath == "" {
			return nil, fmt.Errorf("rotating logs enabled without a log file path")
		}

		if dir := filepath.Dir(config.LogFilePath); dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("could not create log directory: %w", err)
			}
		}

		output = &lumberjack.Logger{
			Filename:   config.LogFilePath,
			MaxSize:    defaultOr(config.MaxSizeMB, 100),
			MaxBackups: defaultOr(config.MaxBackups, 5),
			MaxAge:     defaultOr(config.MaxAgeDays, 30),
		}
	} else if config.LogFilePath != "" {
		f, err := os.OpenFile(config.LogFilePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			return nil, fmt.Errorf("could not create or open log file: %w", err)
		}

		output = f
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      config.LogLevel,
		Output:     output,
		JSONFormat: config.JSONLogFormat,
	}), nil
}

func defaultOr(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}
