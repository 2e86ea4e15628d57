package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/defkit/defkit/pkg/audit"
	"github.com/defkit/defkit/pkg/presenter"
	"github.com/defkit/defkit/pkg/remedy"
)

type FixConfig struct {
	Apply    bool
	ApplyFix string
}

func NewFixConfig() *FixConfig {
	return &FixConfig{}
}

var fixCmd = &cobra.Command{
	Use:   "fix <identifier>",
	Short: "Repair an artifact's deterministic violations",
	Long: `Audit one artifact and remediate it. Deterministic fixes are applied
and verified with --apply; semantic fixes are always returned as proposals
for an external decision-maker. --dry-run and --suggest never write.

Examples:
  defkit fix code-reviewer --dry-run
  defkit fix code-reviewer --apply
  defkit fix code-reviewer --apply-fix=phase-reference-remove-ghost-skill`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getFixConfigFromFlags(cmd)
		runFixCmd(cmd.Context(), args[0], config)
		return nil
	},
}

func init() {
	defaults := NewFixConfig()
	fixCmd.Flags().Bool("apply", defaults.Apply, "Apply deterministic fixes and verify each one")
	fixCmd.Flags().Bool("dry-run", false, "Show what would be fixed without writing")
	fixCmd.Flags().Bool("suggest", false, "Alias for --dry-run")
	fixCmd.Flags().String("apply-fix", defaults.ApplyFix, "Apply a single fix selected by id")
	// One mode per invocation; the default without any flag is dry-run.
	fixCmd.MarkFlagsMutuallyExclusive("apply", "apply-fix", "dry-run", "suggest")
	rootCmd.AddCommand(fixCmd)
}

func getFixConfigFromFlags(cmd *cobra.Command) *FixConfig {
	config := NewFixConfig()
	if apply, err := cmd.Flags().GetBool("apply"); err == nil {
		config.Apply = apply
	}
	if applyFix, err := cmd.Flags().GetString("apply-fix"); err == nil {
		config.ApplyFix = applyFix
	}
	return config
}

func runFixCmd(ctx context.Context, identifier string, config *FixConfig) {
	snap, err := discoverSnapshot(ctx)
	if err != nil {
		presenter.Error(err, "Failed to discover artifacts")
		os.Exit(2)
	}

	art, ok := snap.Resolve(identifier)
	if !ok {
		presenter.Error(errors.Errorf("artifact %q not found", identifier), "Unknown artifact")
		os.Exit(2)
	}

	auditor := audit.NewEngine(ruleSetFromConfig())
	report := auditor.Audit(ctx, art, snap)
	remedier := remedy.NewEngine(auditor)

	var result *remedy.Result
	switch {
	case config.ApplyFix != "":
		result, err = remedier.ApplyByID(ctx, art, report.Verdicts, snap, config.ApplyFix)
	case config.Apply:
		result, err = remedier.Remediate(ctx, art, report.Verdicts, snap, remedy.ModeAutoApply)
	default:
		// Dry-run is the default; never mutate without an explicit --apply.
		result, err = remedier.Remediate(ctx, art, report.Verdicts, snap, remedy.ModeSuggest)
	}

	if result != nil {
		printRemediation(result)
	}
	if err != nil {
		presenter.Error(err, "Remediation failed")
		os.Exit(1)
	}
	if result != nil && len(result.Failed) > 0 {
		os.Exit(1)
	}
}

func printRemediation(result *remedy.Result) {
	for _, applied := range result.Applied {
		presenter.Success(fmt.Sprintf("applied %s (%s)", applied.Fix.ID, applied.Fix.Note))
	}
	for _, failed := range result.Failed {
		presenter.Error(failed.Err, fmt.Sprintf("fix %s", failed.Fix.ID))
	}
	for _, proposed := range result.Proposed {
		presenter.Info(fmt.Sprintf("proposed [%s] %s: %s", proposed.Kind, proposed.ID, proposed.Note))
	}
	if len(result.Applied) == 0 && len(result.Failed) == 0 && len(result.Proposed) == 0 {
		presenter.Info("Nothing to fix")
	}
}
