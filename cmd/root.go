package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobpilot/config"
	"jobpilot/utils"
)

var (
	cfgFile   string
	appConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:           "jobpilot",
	Short:         "Automates job applications in a real browser session.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appConfig = cfg
		utils.InitLogger(cfg.Logger)
		utils.LogDebug("Configuration loaded", zap.String("environment", cfg.Environment))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.Sync()
	},
}

// Execute runs the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		utils.LogError("Command failed", err)
		utils.Sync()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.AddCommand(runCmd, serveCmd, applyCmd, loginCmd, failuresCmd, tokenCmd)
}
