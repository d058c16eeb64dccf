package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/autotier/autotier/pkg/errors"
)

// validate fills defaults and checks the invariants from spec §7.1,
// returning a fully-formed Configuration or the first *errors.Error hit.
// It stops at the first failed check; later problems are not reported
// until that one is fixed.
func validate(raw *rawConfig, sourcePath string) (*Configuration, error) {
	if len(raw.tiers) < 2 {
		return nil, errors.New(errors.ErrCodeTooFewTiers,
			fmt.Sprintf("at least 2 tiers are required, found %d", len(raw.tiers))).
			WithComponent("config").WithOperation("validate")
	}

	global := Global{
		LogLevel:       raw.global.LogLevel.orDefault(defaultLogLevel),
		TierPeriod:     raw.global.TierPeriod.orDefault(defaultTierPeriod),
		StrictPeriod:   raw.global.StrictPeriod.orDefault(defaultStrictPeriod),
		CopyBufferSize: raw.global.CopyBufferSize.orDefault(defaultCopyBufferSize),
		CrawlerThreads: raw.global.CrawlerThreads.orDefault(defaultCrawlerThreads),
		LogFile:        raw.global.LogFile.orDefault(""),
		ControlSocket:  raw.global.ControlSocket.orDefault(""),
	}
	if global.CrawlerThreads <= 0 {
		global.CrawlerThreads = defaultCrawlerThreads
	}
	runPathBase := raw.global.RunPath.orDefault(defaultRunPathBase)
	global.RunPath = filepath.Join(runPathBase, configHash(sourcePath))
	if global.ControlSocket == "" {
		global.ControlSocket = filepath.Join(global.RunPath, "adhoc.sock")
	}

	tiers := make([]Tier, 0, len(raw.tiers))
	for _, rt := range raw.tiers {
		path, ok := rt.Path.value, rt.Path.present
		if !ok || path == "" {
			return nil, errors.New(errors.ErrCodeTierPathInvalid,
				fmt.Sprintf("tier %q has no Path set", rt.ID)).
				WithComponent("config").WithOperation("validate").
				WithContext("tier", rt.ID)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeTierPathInvalid,
				fmt.Sprintf("tier %q path %q is invalid: %v", rt.ID, path, err)).
				WithComponent("config").WithOperation("validate").
				WithContext("tier", rt.ID)
		}

		watermark := rt.Watermark.orDefault(defaultWatermark)
		if watermark < 0 || watermark > 100 {
			return nil, errors.New(errors.ErrCodeWatermarkRange,
				fmt.Sprintf("tier %q watermark %d out of range [0,100]", rt.ID, watermark)).
				WithComponent("config").WithOperation("validate").
				WithContext("tier", rt.ID)
		}

		tiers = append(tiers, Tier{ID: rt.ID, Path: abs, Watermark: watermark})
	}

	if err := checkUniquePaths(tiers); err != nil {
		return nil, err
	}

	return &Configuration{Global: global, Tiers: tiers, SourcePath: sourcePath}, nil
}

func checkUniquePaths(tiers []Tier) error {
	seen := make(map[string]string, len(tiers))
	for _, t := range tiers {
		if other, dup := seen[t.Path]; dup {
			return errors.New(errors.ErrCodeTierPathInvalid,
				fmt.Sprintf("tiers %q and %q share the same path %q", other, t.ID, t.Path)).
				WithComponent("config").WithOperation("validate")
		}
		seen[t.Path] = t.ID
	}
	return nil
}

// configHash derives a per-config-file run directory name, so two autotier
// instances running against different config files never collide in
// /var/lib/autotier, mirroring the original's path-hashing scheme.
func configHash(sourcePath string) string {
	sum := sha1.Sum([]byte(sourcePath))
	return hex.EncodeToString(sum[:])[:16]
}
