package utils

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// NewLogger builds the structured logger shared by the pipeline. format is
// "text" or "json".
func NewLogger(w io.Writer, level, format string) (*pterm.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	logger := pterm.DefaultLogger.WithLevel(lvl).WithWriter(w)
	switch strings.ToLower(format) {
	case "", "text":
		logger = logger.WithFormatter(pterm.LogFormatterColorful)
	case "json":
		logger = logger.WithFormatter(pterm.LogFormatterJSON)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	return logger, nil
}

func ParseLogLevel(level string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pterm.LogLevelTrace, nil
	case "debug":
		return pterm.LogLevelDebug, nil
	case "", "info":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	case "off", "disabled", "none":
		return pterm.LogLevelDisabled, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
