// Package klog builds the kernel's structured logger: a go-logr facade
// over zap, so every subsystem logs through the same logr.Logger
// interface regardless of which concrete backend is wired underneath.
//
// Grounded on jra3-system-agent/cmd/main.go's logger setup: zap.Options
// parsed from flags, wrapped via zapr.NewLogger into a logr.Logger, with
// logr.Discard() as the quiet fallback.
package klog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a logr.Logger. verbose selects zap's development encoder
// (human-readable, debug level and above); otherwise zap's production
// encoder (JSON, info level and above) is used. debugEnabled further
// lowers the level to debug even under the production encoder, matching
// kernelcfg.Config's separate Verbose/DebugEnabled knobs.
func New(verbose, debugEnabled bool) (logr.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if debugEnabled {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	zapLog, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zapLog), nil
}

// Discard returns a logr.Logger that drops everything, for tests and
// other callers that do not want boot-time logging noise.
func Discard() logr.Logger {
	return logr.Discard()
}
