// Package cmd provides the CLI commands for matcalc.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/arthursn/gomatcalc/internal/config"
	"github.com/arthursn/gomatcalc/internal/logging"
	"github.com/arthursn/gomatcalc/pkg/matcalc"
)

// Version is set at build time via -ldflags "-X github.com/arthursn/gomatcalc/cmd/matcalc/cmd.Version=...".
var Version = "dev"

// app carries state shared by all subcommands.
type app struct {
	configPath string
	appDir     string
	library    string
	logLevel   string
	lockFile   string
	quiet      bool

	cfg    *config.Config
	logger *slog.Logger

	// extra options appended to every session (tests inject a fake loader)
	extra []matcalc.Option
}

// Execute runs the root command. An interrupt stops a sweep after the
// equilibrium in progress.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd creates the root command. opts are applied to every engine
// session the commands open.
func NewRootCmd(opts ...matcalc.Option) *cobra.Command {
	a := &app{extra: opts}

	cmd := &cobra.Command{
		Use:   "matcalc",
		Short: "Drive the MatCalc thermodynamics engine from the command line",
		Long: `matcalc loads the MatCalc engine library (mc_core) from a MatCalc
installation and forwards commands, equilibrium calculations and variable
queries to it.

The installation is taken from --app-dir, MATCALC_DIR or the config file.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	cmd.SetVersionTemplate("matcalc version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	pf.StringVar(&a.appDir, "app-dir", "", "MatCalc application directory (env "+config.EnvApplicationDirectory+")")
	pf.StringVar(&a.library, "library", "", "Path to the mc_core library (env "+config.EnvLibrary+")")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.lockFile, "lock-file", "", "Hold an exclusive lock on this file while the engine is in use")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Discard the engine's own stdout output")

	cmd.AddCommand(
		newExecCmd(a),
		newEquilibriumCmd(a),
		newSweepCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// setup resolves the configuration (defaults < file < env < flags) and
// builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path, explicit := a.configPath, a.configPath != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)

	flags := cmd.Flags()
	if flags.Changed("app-dir") {
		cfg.ApplicationDirectory = a.appDir
	}
	if flags.Changed("library") {
		cfg.Library = a.library
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("lock-file") {
		cfg.LockFile = a.lockFile
	}
	if flags.Changed("quiet") {
		cfg.Quiet = a.quiet
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openSession loads the engine and, when initEngine is set, runs Init.
func (a *app) openSession(initEngine bool) (*matcalc.API, error) {
	opts := []matcalc.Option{
		matcalc.WithLogger(a.logger),
		matcalc.WithQuietStdout(a.cfg.Quiet),
	}
	if a.cfg.ApplicationDirectory != "" {
		opts = append(opts, matcalc.WithApplicationDirectory(a.cfg.ApplicationDirectory))
	}
	if a.cfg.Library != "" {
		opts = append(opts, matcalc.WithLibraryPath(a.cfg.Library))
	}
	if len(a.cfg.Preload) > 0 {
		opts = append(opts, matcalc.WithPreload(a.cfg.Preload...))
	}
	if a.cfg.LockFile != "" {
		opts = append(opts, matcalc.WithLockFile(a.cfg.LockFile))
	}
	opts = append(opts, a.extra...)

	mc, err := matcalc.New(opts...)
	if err != nil {
		return nil, err
	}
	if !initEngine {
		return mc, nil
	}
	if err := mc.Init(); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("init: %w", err)
	}
	a.logger.Debug("engine ready", "app_dir", mc.ApplicationDirectory(), "library", mc.LibraryPath())
	return mc, nil
}
