// Package config loads autotier's line-oriented configuration file into a
// validated Configuration, following the [Global]/[<tier id>] section shape
// and override-merge behavior of the original C++ config.cpp, adapted to
// this module's simpler integer watermark model.
package config

import "time"

// LogLevel mirrors the "Log Level" config key: 0 disables logging, 1 is the
// normal level, 2 is debug.
type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelNormal
	LogLevelDebug
)

// setting is an option-typed config value: present distinguishes "absent,
// use default" from "explicitly set to the zero value". No sentinel such as
// -1 escapes this type; validation is the only place a concrete default is
// substituted for an absent value.
type setting[T any] struct {
	value   T
	present bool
}

func set[T any](v T) setting[T] { return setting[T]{value: v, present: true} }

func (s setting[T]) orDefault(def T) T {
	if s.present {
		return s.value
	}
	return def
}

// GlobalConfig holds the [Global] section's values before validation fills
// in defaults.
type GlobalConfig struct {
	LogLevel       setting[LogLevel]
	TierPeriod     setting[time.Duration]
	StrictPeriod   setting[bool]
	CopyBufferSize setting[int64]
	CrawlerThreads setting[int]
	RunPath        setting[string]
	LogFile        setting[string]
	ControlSocket  setting[string]
}

// TierConfig holds one [<id>] section's values before validation.
type TierConfig struct {
	ID        string
	Path      setting[string]
	Watermark setting[int]
}

// Global is the fully validated, default-filled form of GlobalConfig.
type Global struct {
	LogLevel       LogLevel
	TierPeriod     time.Duration // <=0 disables periodic ticks; only oneshot or the ad hoc socket tick
	StrictPeriod   bool
	CopyBufferSize int64
	CrawlerThreads int
	RunPath        string
	LogFile        string
	ControlSocket  string
}

// Tier is the fully validated, default-filled form of TierConfig. Tiers are
// ordered fastest-first, index 0 is the fastest tier (spec §2.1).
type Tier struct {
	ID        string
	Path      string
	Watermark int // percent, 0-100
}

// Configuration is the fully parsed and validated config file.
type Configuration struct {
	Global Global
	Tiers  []Tier

	// SourcePath is the file this configuration was loaded from, kept for
	// diagnostics and for the config Watcher; validation derives the default
	// run directory from the same path.
	SourcePath string
}

const (
	defaultLogLevel       = LogLevelNormal
	defaultTierPeriod     = -1 * time.Second
	defaultStrictPeriod   = false
	defaultCopyBufferSize = 1 << 20 // 1 MiB
	defaultCrawlerThreads = 8
	defaultRunPathBase    = "/var/lib/autotier"
	defaultWatermark      = 80
)
