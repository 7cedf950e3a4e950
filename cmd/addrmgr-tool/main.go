// Command addrmgr-tool loads a persisted peer address snapshot, reports on
// its contents, and periodically re-saves it, exercising the package's
// config loading, logging, and codec paths end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/lnpeer/addrmgr"
	"github.com/lnpeer/addrmgr/build"
	"github.com/lnpeer/addrmgr/clock"
	"github.com/lnpeer/addrmgr/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	rotator := build.NewRotatingLogWriter()
	if err := rotator.InitLogRotator(cfg.Log.File, cfg.LogFilePath()); err != nil {
		return fmt.Errorf("initializing log rotator: %w", err)
	}
	defer rotator.Close()

	consoleHandler, fileHandler := build.NewDefaultLoggers(cfg.Log, rotator)
	backend := btclog.NewBackend(consoleHandler, fileHandler)
	logger := build.NewSubLogger(addrmgr.Subsystem, backend.Logger)
	if err := build.ParseAndSetDebugLevels(cfg.DebugLevel, toolSubLoggers{logger}); err != nil {
		return err
	}
	addrmgr.UseLogger(logger)

	clk := clock.NewDefaultClock()

	mgr, err := loadOrCreateManager(cfg, clk)
	if err != nil {
		return err
	}
	mgr.SetCheckRate(cfg.CheckRate)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infof("loaded address manager with %d addresses (%d new, %d tried)",
		mgr.Size(), mgr.CountNew(), mgr.CountTried())

	const saveInterval = 10 * time.Minute
	for {
		select {
		case <-clk.TickAfter(saveInterval):
			if err := saveManager(mgr, cfg); err != nil {
				logger.Errorf("failed to save peer snapshot: %v", err)
			}
		case <-ctx.Done():
			return saveManager(mgr, cfg)
		}
	}
}

// toolSubLoggers adapts the single addrmgr logger to build.LeveledSubLogger
// so ParseAndSetDebugLevels can apply -debuglevel to it at startup.
type toolSubLoggers struct {
	logger btclog.Logger
}

func (t toolSubLoggers) SubLoggers() build.SubLoggers {
	return build.SubLoggers{addrmgr.Subsystem: t.logger}
}

func (t toolSubLoggers) SupportedSubsystems() []string {
	return []string{addrmgr.Subsystem}
}

func (t toolSubLoggers) SetLogLevel(subsystemID string, logLevel string) {
	if subsystemID != addrmgr.Subsystem {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	t.logger.SetLevel(level)
}

func (t toolSubLoggers) SetLogLevels(logLevel string) {
	t.SetLogLevel(addrmgr.Subsystem, logLevel)
}

func loadOrCreateManager(cfg *config.Config, clk clock.Clock) (*addrmgr.Manager, error) {
	f, err := os.Open(cfg.PeersPath())
	if os.IsNotExist(err) {
		rnd := addrmgr.NewRand()
		return addrmgr.NewManager(rnd.RandUint256(), addrmgr.IPGroupManager{}, rnd), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return addrmgr.NewManagerFromDecode(
		f, addrmgr.IPGroupManager{}, addrmgr.NewRand(), clk.Now().Unix(),
	)
}

func saveManager(mgr *addrmgr.Manager, cfg *config.Config) error {
	tmpPath := cfg.PeersPath() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := mgr.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, cfg.PeersPath())
}
