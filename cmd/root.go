package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"compose-backup/internal/archive"
	"compose-backup/internal/backup"
	"compose-backup/internal/compose"
	"compose-backup/internal/config"
	"compose-backup/internal/discovery"
	"compose-backup/internal/display"
	apperrors "compose-backup/internal/errors"
	"compose-backup/internal/logging"
)

var cfgFile string

// CLI flag variables
var (
	sourcePath     string
	destPath       string
	excludedNames  []string
	retentionCount int
	compression    string
	stopTimeout    time.Duration

	verbose bool
	quiet   bool
	logFile string
	noColor bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "compose-backup",
	Short: "Back up docker-compose project folders with stop/archive/restart lifecycle",
	Long: `compose-backup archives every immediate subfolder of a source directory
into a date-stamped backup directory. Folders containing a docker-compose
manifest are stopped before archiving and restarted afterwards; plain
folders are archived as-is. Old dated directories are rotated down to a
configurable retention count.

Examples:
  # Run a backup pass with the saved configuration
  compose-backup

  # One-off run overriding the configured paths
  compose-backup --source /srv/projects --dest /mnt/backups

  # Keep only the 7 newest dated directories
  compose-backup --retention 7

  # Verbose run with zstd archives
  compose-backup --verbose --compression zstd

  # Interactive first-run setup
  compose-backup setup

  # Prune old backups without running a backup
  compose-backup rotate --dry-run`,
	SilenceUsage: true,
	RunE:         runBackup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.compose-backup.yaml)")

	rootCmd.Flags().StringVar(&sourcePath, "source", "", "directory containing the project folders")
	rootCmd.Flags().StringVar(&destPath, "dest", "", "directory receiving the dated backup directories")
	rootCmd.Flags().StringSliceVar(&excludedNames, "exclude", nil, "folder names to skip (repeatable)")
	rootCmd.Flags().IntVar(&retentionCount, "retention", 0, "number of dated directories to keep (omit for unlimited)")
	rootCmd.Flags().StringVar(&compression, "compression", "", "archive compression (gzip, zstd, lz4)")
	rootCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 60*time.Second, "grace period for container stop")

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "write logs to file in addition to stdout")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable color output")
}

// runBackup is the main execution function for the CLI
func runBackup(cmd *cobra.Command, args []string) error {
	if err := validateFlags(cmd); err != nil {
		return err
	}

	cfg, cfgPath, err := loadOrSetupConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	archiver, err := archive.NewArchiver(cfg.Compression)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	controller := compose.NewController(compose.NewExecRunner(), logger, cfg.StopTimeout)

	// The inspector is advisory; a host without a reachable Docker API
	// still gets its folders archived.
	var inspector compose.ProjectInspector
	if insp, err := compose.NewDockerInspector(); err == nil {
		inspector = insp
		defer insp.Close()
	} else {
		logger.Debugf("Docker API not available, skipping stop verification: %v", err)
	}

	engine := backup.NewEngine(backup.EngineParams{
		Config:     cfg,
		ConfigPath: cfgPath,
		Scanner:    discovery.NewScanner(logger),
		Step:       backup.NewStep(controller, archiver, inspector, logger, cfg.SourcePath),
		Archiver:   archiver,
		Rotator:    backup.NewRotator(logger),
		Controller: controller,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// On SIGINT/SIGTERM: cancel the run first, then bring the folder that
	// was mid-backup back up so no project is left stopped.
	shutdown := apperrors.NewGracefulShutdownHandler()
	shutdown.RegisterShutdownFunc(func() error {
		return engine.RestartInFlight(context.Background())
	})
	shutdown.RegisterShutdownFunc(func() error {
		cancel()
		return nil
	})
	shutdown.Start()
	defer shutdown.Stop()

	run, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	// A signal hands cleanup to the shutdown funcs; wait for the in-flight
	// restart to finish before reporting and exiting.
	if ctx.Err() != nil {
		shutdown.WaitForShutdown()
	}

	if !quiet {
		display.NewReporter(noColor).PrintRunSummary(run)
	}

	if run.WorstOutcome() == backup.OutcomeContainerStartFailed {
		return fmt.Errorf("one or more projects failed to restart, check them manually")
	}
	return nil
}

// validateFlags validates CLI flags and their combinations
func validateFlags(cmd *cobra.Command) error {
	if verbose && quiet {
		return fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}
	if cmd.Flags().Changed("retention") && retentionCount <= 0 {
		return fmt.Errorf("--retention must be a positive number; omit the flag for unlimited retention")
	}
	if stopTimeout < 0 {
		return fmt.Errorf("--stop-timeout must not be negative")
	}
	return nil
}

// loadOrSetupConfig loads the saved configuration. On the first run, when
// no file exists yet and the session is interactive, the setup wizard is
// offered instead of failing.
func loadOrSetupConfig() (*config.Config, string, error) {
	cfgPath := cfgFile
	if cfgPath == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return nil, "", err
		}
		cfgPath = defaultPath
	}

	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, cfgPath, nil
	}
	if !errors.Is(err, config.ErrNotFound) {
		return nil, "", err
	}

	wizard, wErr := config.NewInteractiveWizard()
	if wErr != nil {
		return nil, "", fmt.Errorf("no configuration found at %s; run 'compose-backup setup' first", cfgPath)
	}

	fmt.Printf("No configuration found at %s, starting setup.\n\n", cfgPath)
	cfg, err = wizard.Run()
	if err != nil {
		return nil, "", err
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return nil, "", err
	}
	fmt.Printf("\nConfiguration saved to %s\n\n", cfgPath)

	return cfg, cfgPath, nil
}

// applyFlagOverrides layers explicitly set CLI flags over the saved
// configuration for this run only; nothing is persisted here.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if sourcePath != "" {
		cfg.SourcePath = sourcePath
	}
	if destPath != "" {
		cfg.DestPath = destPath
	}
	if cmd.Flags().Changed("exclude") {
		cfg.ExcludedNames = excludedNames
	}
	if cmd.Flags().Changed("retention") {
		cfg.RetentionCount = retentionCount
	}
	if compression != "" {
		cfg.Compression = compression
	}
	if cmd.Flags().Changed("stop-timeout") {
		cfg.StopTimeout = stopTimeout
	}
	if logFile != "" {
		cfg.LoggingEnabled = true
		cfg.LogFile = logFile
	}
}

// buildLogger creates the run logger from configuration and verbosity flags
func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.LogLevelNormal
	if verbose {
		level = logging.LogLevelVerbose
	}
	if quiet {
		level = logging.LogLevelQuiet
	}

	logCfg := logging.Config{
		Level:  level,
		Format: "text",
	}
	if cfg.LoggingEnabled && cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return logger, nil
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("compose-backup version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}

func init() {
	rootCmd.AddCommand(createVersionCommand())
}
