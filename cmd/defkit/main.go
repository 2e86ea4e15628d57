package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/defkit/defkit/pkg/logger"
	"github.com/defkit/defkit/pkg/presenter"
)

func init() {
	viper.SetEnvPrefix("DEFKIT")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.defkit")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "defkit",
	Short: "Audit, repair, and discover definition artifacts",
	Long: `defkit validates definition artifacts (task, skill, and gateway files
with a typed metadata header) against a phase-ordered rule set, applies
deterministic fixes, and ranks artifacts for discovery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				return err
			}
		}
		if format, _ := cmd.Flags().GetString("log-format"); format != "" {
			logger.SetLogFormat(format)
		}
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			presenter.SetQuiet(true)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text or json)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-error output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := initTracing(ctx)
	if err != nil {
		presenter.Error(err, "Failed to initialize tracing")
	} else {
		defer shutdown(context.Background())
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		os.Exit(2)
	}
}
