package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/presenter"
	"github.com/defkit/defkit/pkg/search"
)

type SearchConfig struct {
	Type     string
	Location string
	Limit    int
}

func NewSearchConfig() *SearchConfig {
	return &SearchConfig{Limit: 20}
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search artifacts by identifier, description, and references",
	Long: `Score every discovered artifact against the query and print matches in
descending score order. Ties break alphabetically by identifier, so the
same registry state always produces the same ordering.

Examples:
  defkit search review
  defkit search review --type skill
  defkit search git --location library --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := getSearchConfigFromFlags(cmd)
		runSearchCmd(cmd.Context(), args[0], config)
		return nil
	},
}

func init() {
	defaults := NewSearchConfig()
	searchCmd.Flags().String("type", defaults.Type, "Filter by artifact type (task, skill, gateway)")
	searchCmd.Flags().String("location", defaults.Location, "Filter by tier (primary, library)")
	searchCmd.Flags().Int("limit", defaults.Limit, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func getSearchConfigFromFlags(cmd *cobra.Command) *SearchConfig {
	config := NewSearchConfig()
	if typ, err := cmd.Flags().GetString("type"); err == nil {
		config.Type = typ
	}
	if location, err := cmd.Flags().GetString("location"); err == nil {
		config.Location = location
	}
	if limit, err := cmd.Flags().GetInt("limit"); err == nil {
		config.Limit = limit
	}
	return config
}

func runSearchCmd(ctx context.Context, query string, config *SearchConfig) {
	if strings.TrimSpace(query) == "" {
		presenter.Error(errors.New("query must not be empty"), "Invalid query")
		os.Exit(2)
	}

	filters, err := searchFilters(config)
	if err != nil {
		presenter.Error(err, "Invalid filter")
		os.Exit(2)
	}

	snap, err := discoverSnapshot(ctx)
	if err != nil {
		presenter.Error(err, "Failed to discover artifacts")
		os.Exit(2)
	}

	engine := search.NewEngine(searchWeightsFromConfig())
	results := engine.Search(query, snap, filters, config.Limit)
	if len(results) == 0 {
		presenter.Info("No matches")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tARTIFACT\tTIER\tKIND\tMATCHED")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			r.Score,
			r.Artifact.Identifier,
			r.Artifact.Location,
			r.Artifact.Kind,
			strings.Join(r.MatchedFields, ","),
		)
	}
	w.Flush()
}

func searchFilters(config *SearchConfig) (search.Filters, error) {
	var filters search.Filters
	if config.Type != "" {
		switch config.Type {
		case string(artifact.KindTask), string(artifact.KindSkill), string(artifact.KindGateway):
			filters.Kind = artifact.Kind(config.Type)
		default:
			return filters, errors.Errorf("unknown artifact type %q", config.Type)
		}
	}
	if config.Location != "" {
		switch config.Location {
		case string(artifact.LocationPrimary):
			filters.Location = artifact.LocationPrimary
		case string(artifact.LocationLibrary):
			filters.Location = artifact.LocationLibrary
		default:
			return filters, errors.Errorf("unknown location %q", config.Location)
		}
	}
	return filters, nil
}
