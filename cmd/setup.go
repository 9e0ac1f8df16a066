package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"compose-backup/internal/config"
)

// setupCmd runs the interactive configuration wizard
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the interactive configuration wizard",
	Long: `Walks through every configuration value (source and destination paths,
logging, excluded folders, retention and compression) and saves the result.
An existing configuration file is overwritten.`,
	RunE: runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	wizard, err := config.NewInteractiveWizard()
	if err != nil {
		return err
	}

	cfg, err := wizard.Run()
	if err != nil {
		return err
	}

	cfgPath := cfgFile
	if cfgPath == "" {
		cfgPath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}

	fmt.Printf("\nConfiguration saved to %s\n", cfgPath)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
