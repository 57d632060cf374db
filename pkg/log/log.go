// Copyright 2025 Transit Beacon Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides structured key/value logging backed by zap.
package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger describes the logger interface.
type Logger interface {
	// New creates a child logger with the given context attached to every
	// entry.
	New(ctx ...interface{}) Logger
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
}

// Config configures the logger.
type Config struct {
	// Level of logging, must be one of debug, info, error. An empty value
	// defaults to info.
	Level string `toml:"level,omitempty"`
}

// InitDefaults populates unset fields with default values.
func (c *Config) InitDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

var root *logger

func init() {
	// A usable logger before Setup is called, e.g. in tests.
	l, err := setup(Config{Level: "debug"})
	if err != nil {
		panic(err)
	}
	root = l
}

// Setup initializes the root logger from the given config. It must be called
// before the root logger is used from multiple goroutines.
func Setup(cfg Config) error {
	l, err := setup(cfg)
	if err != nil {
		return err
	}
	root = l
	return nil
}

func setup(cfg Config) (*logger, error) {
	cfg.InitDefaults()
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zLogger, err := zCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &logger{logger: zLogger}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func parseLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %v", lvl)
	}
}

// Root returns the root logger. It is guaranteed to never return nil.
func Root() Logger {
	return root
}

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }

// Info logs at info level on the root logger.
func Info(msg string, ctx ...interface{}) { root.Info(msg, ctx...) }

// Error logs at error level on the root logger.
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }

// Flush writes any buffered log entries.
func Flush() {
	_ = root.logger.Sync()
}

// HandlePanic catches panics and logs them before exiting. It should be
// deferred at the start of every goroutine.
func HandlePanic() {
	if msg := recover(); msg != nil {
		root.logger.Error("Panic", zap.Any("msg", msg), zap.Stack("stacktrace"))
		_ = root.logger.Sync()
		panic(msg)
	}
}

type logger struct {
	logger *zap.Logger
}

func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func convertCtx(ctx []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}
