package config

import (
	"fmt"

	yaml "gopkg.in/yaml.v2"
)

// dumpGlobal and dumpTier give the yaml.v2 dump a field order and set of
// tags independent of Global/Tier's own layout, matching the original
// dump()'s fixed [Global]-then-tiers shape.
type dumpGlobal struct {
	LogLevel       int    `yaml:"log_level"`
	TierPeriodSecs int64  `yaml:"tier_period_seconds"`
	StrictPeriod   bool   `yaml:"strict_period"`
	CopyBufferSize int64  `yaml:"copy_buffer_size"`
	CrawlerThreads int    `yaml:"crawler_threads"`
	RunPath        string `yaml:"run_path"`
}

type dumpTier struct {
	ID        string `yaml:"id"`
	Path      string `yaml:"path"`
	Watermark int    `yaml:"watermark"`
}

type dumpDoc struct {
	Global dumpGlobal `yaml:"global"`
	Tiers  []dumpTier `yaml:"tiers"`
}

// Dump renders the effective, validated configuration as YAML for
// diagnostics; neither command calls it. This is the one place YAML
// appears; the config file itself stays the bespoke line format parse.go
// reads (spec §6) since nothing in this tiering domain reads or writes a
// YAML config on disk.
func (c *Configuration) Dump() (string, error) {
	doc := dumpDoc{
		Global: dumpGlobal{
			LogLevel:       int(c.Global.LogLevel),
			TierPeriodSecs: int64(c.Global.TierPeriod.Seconds()),
			StrictPeriod:   c.Global.StrictPeriod,
			CopyBufferSize: c.Global.CopyBufferSize,
			CrawlerThreads: c.Global.CrawlerThreads,
			RunPath:        c.Global.RunPath,
		},
	}
	for _, t := range c.Tiers {
		doc.Tiers = append(doc.Tiers, dumpTier{ID: t.ID, Path: t.Path, Watermark: t.Watermark})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling config dump: %w", err)
	}
	return string(out), nil
}
