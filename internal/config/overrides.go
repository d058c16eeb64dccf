package config

import (
	"time"

	"dario.cat/mergo"
)

// Overrides holds CLI-flag-supplied values that should win over whatever
// the config file says. A nil field means "flag not passed" — the same
// present/absent distinction the file parser makes with setting[T], applied
// to the command line instead of a config line (Design Note 2).
type Overrides struct {
	LogLevel       *LogLevel
	TierPeriod     *time.Duration
	StrictPeriod   *bool
	CopyBufferSize *int64
	CrawlerThreads *int
	RunPath        *string
	LogFile        *string
	ControlSocket  *string
}

// globalPtr mirrors GlobalConfig's fields as plain pointers so mergo can
// merge it against an Overrides value without reflecting into setting[T]'s
// unexported fields.
type globalPtr struct {
	LogLevel       *LogLevel
	TierPeriod     *time.Duration
	StrictPeriod   *bool
	CopyBufferSize *int64
	CrawlerThreads *int
	RunPath        *string
	LogFile        *string
	ControlSocket  *string
}

func ptrOf[T any](s setting[T]) *T {
	if !s.present {
		return nil
	}
	v := s.value
	return &v
}

func settingOf[T any](p *T) setting[T] {
	if p == nil {
		return setting[T]{}
	}
	return set(*p)
}

func toGlobalPtr(g GlobalConfig) globalPtr {
	return globalPtr{
		LogLevel:       ptrOf(g.LogLevel),
		TierPeriod:     ptrOf(g.TierPeriod),
		StrictPeriod:   ptrOf(g.StrictPeriod),
		CopyBufferSize: ptrOf(g.CopyBufferSize),
		CrawlerThreads: ptrOf(g.CrawlerThreads),
		RunPath:        ptrOf(g.RunPath),
		LogFile:        ptrOf(g.LogFile),
		ControlSocket:  ptrOf(g.ControlSocket),
	}
}

func fromGlobalPtr(p globalPtr) GlobalConfig {
	return GlobalConfig{
		LogLevel:       settingOf(p.LogLevel),
		TierPeriod:     settingOf(p.TierPeriod),
		StrictPeriod:   settingOf(p.StrictPeriod),
		CopyBufferSize: settingOf(p.CopyBufferSize),
		CrawlerThreads: settingOf(p.CrawlerThreads),
		RunPath:        settingOf(p.RunPath),
		LogFile:        settingOf(p.LogFile),
		ControlSocket:  settingOf(p.ControlSocket),
	}
}

// ApplyOverrides merges CLI-flag overrides on top of whatever the config
// file's [Global] section produced, before validate() fills in defaults for
// whatever remains unset by either source.
func ApplyOverrides(raw *rawConfig, ov Overrides) error {
	dst := toGlobalPtr(raw.global)
	src := globalPtr{
		LogLevel:       ov.LogLevel,
		TierPeriod:     ov.TierPeriod,
		StrictPeriod:   ov.StrictPeriod,
		CopyBufferSize: ov.CopyBufferSize,
		CrawlerThreads: ov.CrawlerThreads,
		RunPath:        ov.RunPath,
		LogFile:        ov.LogFile,
		ControlSocket:  ov.ControlSocket,
	}
	if err := mergo.Merge(&dst, src, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return err
	}
	raw.global = fromGlobalPtr(dst)
	return nil
}
