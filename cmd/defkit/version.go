package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/defkit/defkit/pkg/presenter"
	"github.com/defkit/defkit/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		short, _ := cmd.Flags().GetBool("short")
		if short {
			fmt.Println(version.Get().Version)
			return nil
		}
		presenter.Info(version.Get().String())
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print the bare version string")
	rootCmd.AddCommand(versionCmd)
}
