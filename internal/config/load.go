package config

import (
	"os"

	"go.uber.org/zap"

	"github.com/autotier/autotier/pkg/errors"
)

// Load reads, parses, and validates the config file at path.
func Load(path string, log *zap.Logger) (*Configuration, error) {
	return LoadWithOverrides(path, Overrides{}, log)
}

// LoadWithOverrides reads and parses the config file at path, merges CLI
// overrides on top of the [Global] section, then validates.
func LoadWithOverrides(path string, ov Overrides, log *zap.Logger) (*Configuration, error) {
	raw, err := parseFile(path, log)
	if err != nil {
		return nil, err
	}
	if err := ApplyOverrides(raw, ov); err != nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "failed to apply CLI overrides").
			WithComponent("config").WithOperation("load").
			WithContext("path", path).WithCause(err)
	}
	return validate(raw, path)
}

func parseFile(path string, log *zap.Logger) (*rawConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeMissingConfig, "config file not found").
				WithComponent("config").WithOperation("load").
				WithContext("path", path).WithCause(err)
		}
		return nil, errors.New(errors.ErrCodeInvalidConfig, "failed to open config file").
			WithComponent("config").WithOperation("load").
			WithContext("path", path).WithCause(err)
	}
	defer f.Close()

	raw, err := parse(f, log)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "failed to parse config file").
			WithComponent("config").WithOperation("load").
			WithContext("path", path).WithCause(err)
	}
	return raw, nil
}
