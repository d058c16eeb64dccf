// Command autotierfs mounts autotier's union filesystem and runs its
// background tiering engine, the FUSE daemon half of the two-binary
// architecture (the autotier command is its ad hoc control client).
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/autotier/autotier/internal/circuit"
	"github.com/autotier/autotier/internal/config"
	"github.com/autotier/autotier/internal/control"
	"github.com/autotier/autotier/internal/engine"
	"github.com/autotier/autotier/internal/fusefs"
	"github.com/autotier/autotier/internal/health"
	"github.com/autotier/autotier/internal/logging"
	"github.com/autotier/autotier/internal/metrics"
	"github.com/autotier/autotier/internal/migration"
	"github.com/autotier/autotier/internal/pin"
	"github.com/autotier/autotier/internal/resolver"
	"github.com/autotier/autotier/internal/tier"
	autoerrors "github.com/autotier/autotier/pkg/errors"
)

func main() {
	var (
		configPath  = flag.String("config", "/etc/autotier.conf", "path to the autotier config file")
		mountpoint  = flag.String("mountpoint", "", "directory to mount the union filesystem at (required)")
		initConfig  = flag.Bool("init-config", false, "write a default config file to -config and exit")
		oneshot     = flag.Bool("oneshot", false, "run a single tiering pass and exit, ignoring Tier Period")
		foreground  = flag.Bool("foreground", false, "stay attached to the terminal instead of logging only to -config's LogFile")
		allowOther  = flag.Bool("allow-other", false, "allow other users to access the mount (requires user_allow_other in fuse.conf)")
		readOnly    = flag.Bool("read-only", false, "mount read-only; the engine still tiers files in the background")
		debug       = flag.Bool("debug", false, "enable FUSE request tracing")
		metricsAddr = flag.String("metrics-addr", "", "address to serve /metrics and /healthz on, e.g. :9090 (disabled if empty)")
		logLevel    = flag.Int("log-level", -1, "override the config file's Log Level (0=none, 1=normal, 2=debug)")
	)
	flag.Parse()

	if *initConfig {
		if err := config.InitConfigFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "autotierfs:", err)
			os.Exit(1)
		}
		fmt.Println("wrote default config to", *configPath)
		return
	}

	if *mountpoint == "" {
		fmt.Fprintln(os.Stderr, "autotierfs: -mountpoint is required")
		flag.Usage()
		os.Exit(2)
	}

	var overrides config.Overrides
	if *logLevel >= 0 {
		lvl := config.LogLevel(*logLevel)
		overrides.LogLevel = &lvl
	}

	bootLog, _ := logging.New(logging.LevelNormal, "")
	cfg, err := config.LoadWithOverrides(*configPath, overrides, bootLog)
	if err != nil {
		var cfgErr *autoerrors.Error
		if stderrors.As(err, &cfgErr) && cfgErr.Code == autoerrors.ErrCodeMissingConfig {
			if initErr := config.InitConfigFile(*configPath); initErr == nil {
				fmt.Fprintln(os.Stderr, "autotierfs: no config file found; wrote defaults to", *configPath, "- edit it and restart")
				os.Exit(1)
			}
		}
		fmt.Fprintln(os.Stderr, "autotierfs: loading config:", err)
		os.Exit(1)
	}

	logFile := cfg.Global.LogFile
	if *foreground {
		logFile = ""
	}
	log, err := logging.New(logging.Level(cfg.Global.LogLevel), logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "autotierfs: building logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *mountpoint, *oneshot, *allowOther, *readOnly, *debug, *metricsAddr, log); err != nil {
		log.Error("autotierfs exiting with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Configuration, mountpoint string, oneshot, allowOther, readOnly, debug bool, metricsAddr string, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.Global.RunPath, 0o750); err != nil {
		return fmt.Errorf("creating run path: %w", err)
	}

	breakers := circuit.NewManager(circuit.Config{})
	tiers := make([]*tier.Tier, len(cfg.Tiers))
	for i, tc := range cfg.Tiers {
		tiers[i] = tier.New(tc.ID, tc.Path, tc.Watermark, breakers, log)
		if err := tiers[i].Refresh(); err != nil {
			return fmt.Errorf("sampling tier %s: %w", tc.ID, err)
		}
	}

	res := resolver.New(tiers, log)

	migrator := migration.New(migration.Config{
		BufferSize: cfg.Global.CopyBufferSize,
	}, log)

	pins := pin.New()
	coll := metrics.NewCollector()
	tracker := health.NewTracker(health.DefaultConfig())
	for _, t := range cfg.Tiers {
		tracker.Register(t.ID)
	}
	tracker.Register("control")
	tracker.Register("fuse")

	period := cfg.Global.TierPeriod
	if oneshot {
		period = 0
	}
	eng := engine.New(res, migrator, pins, coll, tracker, period, cfg.Global.StrictPeriod, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if oneshot {
		if err := eng.Tick(ctx); err != nil {
			return fmt.Errorf("oneshot tick: %w", err)
		}
		return nil
	}

	core := fusefs.New(res, migrator, pins, coll, log)
	handle, err := fusefs.Mount(core, mountpoint, fusefs.MountOptions{
		FSName:     "autotier",
		AllowOther: allowOther,
		ReadOnly:   readOnly,
		Debug:      debug,
	}, log)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", mountpoint, err)
	}

	ctrl := control.New(cfg.Global.ControlSocket, eng, res, pins, tracker, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eng.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return ctrl.ListenAndServe(gctx)
	})

	if metricsAddr != "" {
		g.Go(func() error {
			return coll.Serve(gctx, metricsAddr, map[string]http.Handler{"/healthz": tracker.Handler()})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("autotierfs: shutting down", zap.String("mountpoint", mountpoint))
		if err := handle.Unmount(); err != nil {
			log.Warn("autotierfs: unmount failed", zap.Error(err))
		}
		return nil
	})

	handle.Wait()
	stop()

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
