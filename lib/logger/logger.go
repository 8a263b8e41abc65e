// Package logger builds the zap loggers used across chainstore.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	// LevelNone disables logging
	LevelNone = "none"
)

// New returns a sugared production logger named after service, logging at
// info level.
func New(service string) (*zap.SugaredLogger, error) {
	return NewWithLevel(service, LevelInfo)
}

// NewWithLevel returns a sugared production logger named after service.
func NewWithLevel(service, level string) (*zap.SugaredLogger, error) {
	if level == LevelNone {
		return zap.NewNop().Sugar(), nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return log.Named(service).Sugar(), nil
}
