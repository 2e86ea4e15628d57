package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/presenter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered artifacts",
	Long: `Discover artifacts across the primary and library tiers and print them
in registry order: primary tier first, then identifier. Artifacts that
failed to parse are listed with their parse error instead of a
description.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runListCmd(cmd.Context())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runListCmd(ctx context.Context) {
	snap, err := discoverSnapshot(ctx)
	if err != nil {
		presenter.Error(err, "Failed to discover artifacts")
		os.Exit(2)
	}
	if snap.Len() == 0 {
		presenter.Info("No artifacts found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tTIER\tKIND\tLINES\tDESCRIPTION")
	for _, art := range snap.Artifacts() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			art.Identifier,
			art.Location,
			art.Kind,
			art.LineCount,
			describeArtifact(art),
		)
	}
	w.Flush()
}

func describeArtifact(art *artifact.Artifact) string {
	if !art.Parseable() {
		return fmt.Sprintf("(parse error: %v)", art.ParseErr)
	}
	desc := art.Header.Description
	if len(desc) > 80 {
		desc = desc[:77] + "..."
	}
	return desc
}
