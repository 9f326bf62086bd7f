// Package logging builds the zap logger shared by every command.
//
// Human-readable lines go to stderr so that command output on stdout stays
// clean for piping. When a file is configured the same entries are also
// written there as JSON, rotated by lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	MaxSizeMB  = 20
	MaxBackups = 5
	MaxAgeDays = 28
)

// Options configures New.
type Options struct {
	Level string
	File  string
	// JSON switches the console encoder to JSON.
	JSON bool
	// Console overrides the console writer. Nil means stderr.
	Console io.Writer
}

// ParseLevel accepts the zap level names, case-insensitively. The empty
// string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return lvl, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// New returns a logger writing to the console and, if opts.File is set, to a
// rotated file. The caller should Sync it before exiting.
func New(opts Options) (*zap.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	var console zapcore.Encoder
	if opts.JSON {
		console = zapcore.NewJSONEncoder(encoderConfig())
	} else {
		cc := encoderConfig()
		cc.EncodeLevel = zapcore.CapitalLevelEncoder
		cc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cc.CallerKey = ""
		console = zapcore.NewConsoleEncoder(cc)
	}
	var out io.Writer = os.Stderr
	if opts.Console != nil {
		out = opts.Console
	}
	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.AddSync(out), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rw := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rw), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger { return zap.NewNop() }
