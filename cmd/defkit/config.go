package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/audit"
	"github.com/defkit/defkit/pkg/registry"
	"github.com/defkit/defkit/pkg/search"
)

// newDiscovery builds artifact discovery from configuration, falling back
// to the default tier directories.
func newDiscovery() (*registry.Discovery, error) {
	primary := viper.GetStringSlice("dirs.primary")
	library := viper.GetStringSlice("dirs.library")
	if len(primary) == 0 && len(library) == 0 {
		return registry.NewDiscovery()
	}
	return registry.NewDiscovery(registry.WithTierDirs(primary, library))
}

// ruleSetFromConfig starts from the default rule set and applies the
// numeric overrides exposed through configuration. The phase list itself
// is not configurable from the CLI; tests inject custom phases directly.
func ruleSetFromConfig() *audit.RuleSet {
	rules := audit.DefaultRuleSet()

	if v := viper.GetInt("audit.description_max_length"); v > 0 {
		rules.DescriptionMaxLength = v
	}
	for kind, key := range map[artifact.Kind]string{
		artifact.KindTask:    "audit.line_ceilings.task",
		artifact.KindSkill:   "audit.line_ceilings.skill",
		artifact.KindGateway: "audit.line_ceilings.gateway",
	} {
		if v := viper.GetInt(key); v > 0 {
			rules.LineCeilings[kind] = v
		}
	}
	if v := viper.GetStringSlice("audit.critical_phases"); len(v) > 0 {
		rules.CriticalPhases = v
	}

	return rules
}

// searchWeightsFromConfig applies configured scoring weight overrides.
func searchWeightsFromConfig() search.Weights {
	weights := search.DefaultWeights()
	if v := viper.GetInt("search.weights.identifier_exact"); v > 0 {
		weights.IdentifierExact = v
	}
	if v := viper.GetInt("search.weights.identifier_substring"); v > 0 {
		weights.IdentifierSubstring = v
	}
	if v := viper.GetInt("search.weights.description"); v > 0 {
		weights.Description = v
	}
	if v := viper.GetInt("search.weights.kind_filter"); v > 0 {
		weights.KindFilter = v
	}
	if v := viper.GetInt("search.weights.membership"); v > 0 {
		weights.Membership = v
	}
	return weights
}

// historyDBPath returns the audit history database location.
func historyDBPath() (string, error) {
	if path := viper.GetString("history.db_path"); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, ".defkit", "history.db"), nil
}
