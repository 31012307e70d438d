// Package observability holds the process-wide CLI logger.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	ProfileConsole    = "console"
	ProfileStructured = "structured"
)

// CLILogger is the logger used by commands. It writes to stderr so stdout
// stays clean for JSONL output. It is a no-op until initialized.
var CLILogger = zap.NewNop()

// InitCLILogger installs a console logger named after the app. verbose
// lowers the level to debug.
func InitCLILogger(appName string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := NewLogger(appName, level, ProfileConsole)
	if err != nil {
		logger = zap.NewNop()
	}
	CLILogger = logger
}

// Configure replaces CLILogger according to a level and profile.
func Configure(appName, level, profile string) error {
	logger, err := NewLogger(appName, level, profile)
	if err != nil {
		return err
	}
	CLILogger = logger
	return nil
}

// NewLogger builds a stderr logger. Profile "structured" emits JSON,
// anything else a colorless console format.
func NewLogger(appName, level, profile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(profile) {
	case ProfileStructured:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core).Named(appName), nil
}
