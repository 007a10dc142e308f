package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cellsentry/cellsentry/internal/analysis"
	"github.com/cellsentry/cellsentry/internal/config"
	"github.com/cellsentry/cellsentry/internal/log"
	"github.com/cellsentry/cellsentry/internal/observability"
	"github.com/cellsentry/cellsentry/internal/report"
	"github.com/cellsentry/cellsentry/internal/schedule"
	"github.com/cellsentry/cellsentry/internal/server"
	"github.com/cellsentry/cellsentry/internal/store"
)

var (
	userConfigPath string // default config dir for cellsentry on this OS
	configPath     string // actual config file used (if loaded)
	cfg            config.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagAnalyzeAll     bool   // value of analyze --all
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "cellsentry")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is cellsentry.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initCellsentry

	analyzeCmd.Flags().BoolVar(&flagAnalyzeAll, "all", false, "analyze every capture in the store")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("cellsentry failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "cellsentry",
	Short:        "Background monitor detecting rogue base-station behavior in baseband captures",
	SilenceUsage: true,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "daemon serves the analysis queue and its HTTP control surface",
	RunE:  doDaemon,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [capture]",
	Short: "analyze runs the detection pipeline over stored captures without the daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doAnalyze,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of cellsentry",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("cellsentry: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:     %s\n", configPath)
		}
		fmt.Printf("cellsentry: %s\n", info.Main.Version)
		fmt.Printf("go:         %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:     %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:       %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:      %s\n", s.Value)
			}
		}
	},
}

func doDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("cellsentry",
		slog.String("cmd", "daemon"),
		slog.Int("pid", os.Getpid()),
	))

	st, err := store.Open(cfg.CaptureDir)
	if err != nil {
		return err
	}

	metrics := observability.New()
	engine := analysis.New(st, cfg.Analyzers).WithMetrics(metrics)

	uploaders, err := report.FromConfig(cfg.Reporting)
	if err != nil {
		return fmt.Errorf("initializing report uploaders: %w", err)
	}
	defer func() {
		if err := report.CloseAll(uploaders); err != nil {
			slog.Error("closing report uploaders failed", "error", err)
		}
	}()
	engine.WithUploaders(uploaders...)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(engine, metrics.Handler()),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		slog.InfoContext(gctx, "control surface listening", "addr", cfg.ListenAddr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if cfg.Schedule != nil && cfg.Schedule.Cron != "" {
		trigger, err := schedule.New(cfg.Schedule.Cron, func() {
			if _, _, err := engine.QueueAll(); err != nil {
				slog.ErrorContext(gctx, "scheduled enqueue failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return trigger.Run(gctx)
		})
	}

	return g.Wait()
}

func doAnalyze(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("cellsentry",
		slog.String("cmd", "analyze"),
		slog.Int("pid", os.Getpid()),
	))

	st, err := store.Open(cfg.CaptureDir)
	if err != nil {
		return err
	}

	var names []string
	switch {
	case flagAnalyzeAll:
		names = st.EntryNames()
	case len(args) == 1:
		names = args
	default:
		return fmt.Errorf("provide a capture name or --all")
	}

	var errs []error
	for _, name := range names {
		warning, err := analysis.Perform(ctx, st, cfg.Analyzers, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if warning {
			fmt.Printf("%s: WARNING (see %s)\n", name, st.AnalysisPath(name))
		} else {
			fmt.Printf("%s: clean\n", name)
		}
	}
	return errors.Join(errs...)
}

func initCellsentry(_ *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("CELLSENTRY_CONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, "cellsentry.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		// store the default configuration
		cfg = config.Default()
		configPath = filepath.Join(userConfigPath, "cellsentry.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0o755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		if err := cfg.Save(f); err != nil {
			return err
		}
	} else {
		var err error
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}
	}

	// --verbose has precedence over the config file
	if flagVerbose {
		cfg.Verbose = true
	}

	slog.SetDefault(log.New(cfg.Verbose))
	slog.Debug("cellsentry run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
