// Package logging builds the zap logger autotier's components share, wiring
// the config file's "Log Level" setting and optional log-file rotation the
// way gftdcojp-nats-tiered-storage and omalloc-tavern set up their own
// loggers.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors the config file's three-value "Log Level" setting.
type Level int

const (
	LevelNone Level = iota
	LevelNormal
	LevelDebug
)

// New builds a zap.Logger for the given level and optional log file. A
// LevelNone logger discards everything below Fatal so autotier can run
// silent without special-casing call sites.
func New(level Level, logFile string) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var sink zapcore.WriteSyncer
	if logFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stdout)
	}

	// LevelNone only lets Fatal through, which is as close as zap comes to
	// "off" while still surfacing a hard startup failure.
	zapLevel := zapLevelFor(level)
	if level == LevelNone {
		zapLevel = zapcore.FatalLevel
	}

	core := zapcore.NewCore(encoder, sink, zapLevel)
	return zap.New(core), nil
}

func zapLevelFor(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelNormal:
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}
