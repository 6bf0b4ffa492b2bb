// atlasd builds aligned market data collections and serves them to an
// interactive shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xtxerr/atlas/internal/collection"
	"github.com/xtxerr/atlas/internal/config"
	"github.com/xtxerr/atlas/internal/logging"
	"github.com/xtxerr/atlas/internal/registry"
	"github.com/xtxerr/atlas/internal/shell"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "", "config file path")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	datetimeFormat := flag.String("datetime-format", "", "timestamp format for collections given as arguments")
	runShell := flag.Bool("shell", true, "run the command shell after loading")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: atlasd [flags] [name=directory ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*cfgPath, *logLevel, *datetimeFormat, *runShell, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "atlasd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, logLevel, datetimeFormat string, runShell bool, args []string) error {
	// =========================================================================
	// Configuration
	// =========================================================================

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	for _, arg := range args {
		name, source, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("argument %q is not name=directory", arg)
		}
		cfg.AddCollection(config.CollectionConfig{Name: name, Source: source, DatetimeFormat: datetimeFormat})
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(cfg.Log.Level, cfg.Log.Format == "json"); err != nil {
		return err
	}
	defer logging.Sync()

	log := logging.Component("atlasd")
	log.Info("starting", zap.String("version", Version), zap.Int("collections", len(cfg.Collections)))

	// =========================================================================
	// Build collections
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	reg := registry.New(
		registry.WithCollectionOptions(cfg.CollectionOptions()...),
		registry.WithMaxParallel(cfg.Build.MaxParallel),
		registry.WithMetrics(registry.NewMetrics(promReg)),
	)

	if err := reg.LoadAll(ctx, cfg.Specs()); err != nil {
		return err
	}

	for _, name := range reg.Names() {
		h, _ := reg.Get(name)
		_ = h.View(func(c *collection.Collection) error {
			log.Info("collection ready",
				zap.String("collection", name),
				zap.Int("instruments", c.NumInstruments()),
				zap.Int("steps", c.Len()))
			return nil
		})
	}

	// =========================================================================
	// Shell
	// =========================================================================

	if !runShell {
		return nil
	}

	sh := shell.New(reg, shell.WithGatherer(promReg))
	if shell.Interactive() {
		sh.RunPrompt()
		return nil
	}
	return sh.Run(ctx, os.Stdin, os.Stdout)
}
