package config

import (
	"fmt"
	"os"

	"github.com/autotier/autotier/pkg/errors"
)

const defaultConfigTemplate = `[Global]
# 0 = none, 1 = normal, 2 = debug
Log Level = 1
# seconds between tiering passes; <= 0 disables the periodic timer and
# autotier only tiers when run with --oneshot or via the adhoc socket
Tier Period = 300
# if true, skip a tick entirely (rather than running it late) when the
# previous tick overran Tier Period
Strict Period = false
# bytes moved per read()/write() call during a stream-copy migration
Copy Buffer Size = 1048576
# validated and shown in the config dump; enumeration runs one goroutine
# per tier regardless of this value
Crawler Threads = 8

# One [<id>] section per tier, fastest first. "Watermark" is the fill
# percentage above which the tier engine starts evicting files downward.
[Tier 1]
Path = /mnt/fast-tier
Watermark = 80

[Tier 2]
Path = /mnt/slow-tier
Watermark = 95
`

// InitConfigFile writes a commented default config file to path, refusing
// to overwrite an existing file, mirroring the original init_config_file.
func InitConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.New(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("config file %q already exists, refusing to overwrite", path)).
			WithComponent("config").WithOperation("init")
	} else if !os.IsNotExist(err) {
		return errors.New(errors.ErrCodeInvalidConfig, "failed to stat config path").
			WithComponent("config").WithOperation("init").WithCause(err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return errors.New(errors.ErrCodeInvalidConfig, "failed to write default config file").
			WithComponent("config").WithOperation("init").WithCause(err)
	}
	return nil
}
