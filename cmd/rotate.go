package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"compose-backup/internal/backup"
	"compose-backup/internal/config"
	"compose-backup/internal/display"
	apperrors "compose-backup/internal/errors"
)

var rotateDryRun bool

// rotateCmd prunes old dated backup directories without running a backup
var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Prune old dated backup directories down to the retention count",
	Long: `Applies the configured retention to the destination directory without
performing a backup. Only directories named like a date stamp (YYYY-MM-DD)
are considered; anything else in the destination is left alone.`,
	RunE: runRotate,
}

func runRotate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("no configuration found; run 'compose-backup setup' first")
		}
		return err
	}

	if cfg.RetentionCount <= 0 {
		fmt.Println("Retention is unlimited, nothing to rotate.")
		return nil
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	result := backup.NewRotator(logger).Rotate(cfg.DestPath, cfg.RetentionCount, rotateDryRun)
	display.NewReporter(noColor).PrintRotation(result)

	for _, rotateErr := range result.Errors {
		if apperrors.GetErrorType(rotateErr) == apperrors.ErrorTypeRetentionDelete {
			return fmt.Errorf("rotation finished with failures")
		}
	}
	return nil
}

func init() {
	rotateCmd.Flags().BoolVar(&rotateDryRun, "dry-run", false, "show what would be removed without deleting")
	rotateCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rotateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rotateCmd.Flags().BoolVar(&noColor, "no-color", false, "disable color output")

	rootCmd.AddCommand(rotateCmd)
}
