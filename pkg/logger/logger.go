// Package logger wraps go.uber.org/zap behind a small constructor surface
// so every service binary builds its logger the same way and threads one
// instance through its constructors rather than reaching for a package
// global.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the zapcore levels the config layer accepts from YAML/env
// without importing zapcore into every caller.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config selects the encoding and level for a service's root logger.
type Config struct {
	Level      Level  `mapstructure:"level"`
	JSONFormat bool   `mapstructure:"json_format"`
	Service    string `mapstructure:"service"`
}

// DefaultConfig returns the console-encoded, human-readable configuration
// used outside of production (local runs, `schedule-once`, tests).
func DefaultConfig() Config {
	return Config{Level: InfoLevel, JSONFormat: false, Service: "priceguard"}
}

// ProductionConfig returns the JSON-encoded configuration `cmd/priceguard
// serve` runs with.
func ProductionConfig() Config {
	return Config{Level: InfoLevel, JSONFormat: true, Service: "priceguard"}
}

// New builds a *zap.Logger from Config, with a "service" field set on every
// entry and caller/stacktrace annotation on Error and above.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSONFormat {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), cfg.Level.zapLevel())

	service := cfg.Service
	if service == "" {
		service = "priceguard"
	}

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", service))
	return l, nil
}

// Must builds a logger and panics on failure; used at process bootstrap
// where there is no sensible fallback.
func Must(cfg Config) *zap.Logger {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// Component names used consistently for `.Named()` sub-loggers across the
// monitoring, alerting and notification services.
const (
	ComponentScheduler     = "scheduler"
	ComponentDispatcher    = "dispatcher"
	ComponentAnalyzer      = "analyzer"
	ComponentRuleEngine    = "ruleengine"
	ComponentNotifier      = "notifier"
	ComponentExtraction    = "extraction"
	ComponentEngagement    = "engagement"
)
