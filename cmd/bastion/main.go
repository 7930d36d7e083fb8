package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/brettbedarf/bastion/config"
	"github.com/brettbedarf/bastion/filesystem"
	"github.com/brettbedarf/bastion/internal/metrics"
	"github.com/brettbedarf/bastion/internal/util"
	"github.com/brettbedarf/bastion/shell"
	"github.com/brettbedarf/bastion/store"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Parse command line arguments
	var (
		configPath  string
		script      string
		verbose     int
		storeName   string
		metricsAddr string
		logFile     string
		history     string
	)
	flags := pflag.NewFlagSet("bastion", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "Path to config file (.yaml, .yml, .json, .jsonc, .hujson)")
	flags.StringVarP(&script, "script", "s", "", "Run commands from a file instead of the interactive shell")
	flags.IntVarP(&verbose, "verbose", "v", config.WarnVerbose,
		"Log verbosity level between 1 (error) and 5 (trace). Default is 2 (warn).")
	flags.StringVar(&storeName, "store", "", "Backing store: nop or extents")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, i.e. :9090")
	flags.StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stderr")
	flags.StringVar(&history, "history", "", "Interactive shell history file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Log with the CLI verbosity until the config says otherwise
	util.InitializeLogger(config.VerboseToLogLvl(verbose), util.LogOptions{})
	logger := util.GetLogger("main")

	cfg := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		logger.Debug().Str("config", configPath).Msg("Config file loaded")
	}
	cfg.Merge(flagOverride(flags, verbose, storeName, metricsAddr, logFile, history))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	util.InitializeLogger(cfg.LogLvl, util.LogOptions{File: cfg.LogFile})
	logger = util.GetLogger("main")

	registry := store.NewRegistry()
	store.RegisterBuiltins(registry)
	backing, err := registry.NewStore(cfg.Store, cfg.TotalSize)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}

	var collector metrics.Collector = metrics.NopCollector{}
	if cfg.MetricsAddr != "" {
		pc, err := metrics.NewPrometheusCollector()
		if err != nil {
			return err
		}
		collector = pc
		srv := serveMetrics(cfg.MetricsAddr, pc)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to stop metrics server")
			}
		}()
	}

	fsys := filesystem.NewFS(cfg,
		filesystem.WithStore(backing),
		filesystem.WithMetrics(collector),
	)
	sh := shell.New(fsys, os.Stdout)
	logger.Info().Str("store", cfg.Store).Int64("blockSize", cfg.BlockSize).Msg("Bastion initialized")

	switch {
	case script != "":
		f, err := os.Open(script)
		if err != nil {
			return err
		}
		defer f.Close()
		return sh.RunScript(f)
	case !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()):
		// Piped input runs as a script without prompts
		return sh.RunScript(os.Stdin)
	default:
		return shell.NewREPL(sh, cfg.ShellOptions).Run()
	}
}

// flagOverride turns the flags the user actually set into a config override
// so they take precedence over the config file
func flagOverride(flags *pflag.FlagSet, verbose int, storeName, metricsAddr, logFile, history string) *config.ConfigOverride {
	override := &config.ConfigOverride{}
	if flags.Changed("verbose") {
		override.LogLvl = &verbose
	}
	if flags.Changed("store") {
		override.Store = &storeName
	}
	if flags.Changed("metrics-addr") {
		override.MetricsAddr = &metricsAddr
	}
	if flags.Changed("log-file") {
		override.LogFile = &logFile
	}
	if flags.Changed("history") {
		override.HistoryFile = &history
	}
	return override
}

func serveMetrics(addr string, pc *metrics.PrometheusCollector) *http.Server {
	logger := util.GetLogger("Metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", pc.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          util.NewLogLogger("Metrics", util.ErrorLevel),
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	return srv
}
