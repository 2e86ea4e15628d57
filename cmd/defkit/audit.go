package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/defkit/defkit/pkg/audit"
	"github.com/defkit/defkit/pkg/history"
	"github.com/defkit/defkit/pkg/presenter"
	"github.com/defkit/defkit/pkg/registry"
)

type AuditConfig struct {
	All     bool
	Phases  []string
	History bool
}

func NewAuditConfig() *AuditConfig {
	return &AuditConfig{}
}

var auditCmd = &cobra.Command{
	Use:   "audit [identifier]",
	Short: "Audit definition artifacts against the rule phases",
	Long: `Audit one artifact, or all artifacts with --all, against the ordered
rule phases. Exit code is 0 when everything passes or only warns, 1 when
any critical phase fails, and 2 on usage errors.

Examples:
  defkit audit code-reviewer
  defkit audit --all
  defkit audit --all --phases=structural-syntax,reference-integrity`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getAuditConfigFromFlags(cmd)
		if !config.All && len(args) == 0 {
			return errors.New("an identifier or --all is required")
		}
		identifier := ""
		if len(args) > 0 {
			identifier = args[0]
		}
		runAuditCmd(cmd.Context(), identifier, config)
		return nil
	},
}

func init() {
	defaults := NewAuditConfig()
	auditCmd.Flags().Bool("all", defaults.All, "Audit every artifact in both tiers")
	auditCmd.Flags().StringSlice("phases", defaults.Phases, "Restrict the audit to a subset of phase ids")
	auditCmd.Flags().Bool("history", defaults.History, "Persist the batch outcome to the audit history database")
	rootCmd.AddCommand(auditCmd)
}

func getAuditConfigFromFlags(cmd *cobra.Command) *AuditConfig {
	config := NewAuditConfig()
	if all, err := cmd.Flags().GetBool("all"); err == nil {
		config.All = all
	}
	if phases, err := cmd.Flags().GetStringSlice("phases"); err == nil {
		config.Phases = phases
	}
	if hist, err := cmd.Flags().GetBool("history"); err == nil {
		config.History = hist
	}
	return config
}

func runAuditCmd(ctx context.Context, identifier string, config *AuditConfig) {
	snap, err := discoverSnapshot(ctx)
	if err != nil {
		presenter.Error(err, "Failed to discover artifacts")
		os.Exit(2)
	}

	engine := audit.NewEngine(ruleSetFromConfig())
	if err := engine.ValidatePhases(config.Phases); err != nil {
		presenter.Error(err, "Invalid phase selection")
		os.Exit(2)
	}

	var batch *audit.BatchReport
	if config.All {
		batch, err = engine.AuditAllPhases(ctx, snap, config.Phases)
		if err != nil {
			presenter.Error(err, "Batch audit failed")
			os.Exit(2)
		}
	} else {
		art, ok := snap.Resolve(identifier)
		if !ok {
			presenter.Error(errors.Errorf("artifact %q not found", identifier), "Unknown artifact")
			os.Exit(2)
		}
		report := engine.AuditPhases(ctx, art, snap, config.Phases)
		batch = &audit.BatchReport{ID: uuid.NewString(), Reports: []*audit.Report{report}}
		switch report.Status {
		case audit.SeverityPass:
			batch.Summary.Pass++
		case audit.SeverityWarn:
			batch.Summary.Warn++
		case audit.SeverityFail:
			batch.Summary.Fail++
		}
	}

	printBatch(batch)

	if config.History {
		if err := saveHistory(ctx, batch); err != nil {
			presenter.Error(err, "Failed to persist audit history")
		}
	}

	if batch.Summary.Fail > 0 {
		os.Exit(1)
	}
}

func discoverSnapshot(ctx context.Context) (*registry.Snapshot, error) {
	discovery, err := newDiscovery()
	if err != nil {
		return nil, err
	}
	arts, err := discovery.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return registry.NewSnapshot(arts), nil
}

func printBatch(batch *audit.BatchReport) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARTIFACT\tTIER\tSTATUS\tFINDINGS")
	for _, report := range batch.Reports {
		var findings []string
		for _, v := range report.Verdicts {
			if v.Severity == audit.SeverityPass {
				continue
			}
			findings = append(findings, fmt.Sprintf("%s: %s", v.PhaseID, v.Message))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			report.Artifact.Identifier,
			report.Artifact.Location,
			strings.ToUpper(string(report.Status)),
			strings.Join(findings, " | "))
	}
	tw.Flush()

	presenter.Separator()
	presenter.Info(fmt.Sprintf("%d pass, %d warn, %d fail (%d unparseable)",
		batch.Summary.Pass, batch.Summary.Warn, batch.Summary.Fail, batch.Summary.ParseErrors))
}

func saveHistory(ctx context.Context, batch *audit.BatchReport) error {
	dbPath, err := historyDBPath()
	if err != nil {
		return err
	}
	store, err := history.NewStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, batch)
}
