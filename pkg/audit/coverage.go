package audit

import (
	"fmt"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// coveragePhase scans the body against the kind-specific recommended
// reference table and flags likely-missing references. It only ever warns:
// a coverage suggestion is advice for a human, never a blocking defect and
// never auto-applied.
type coveragePhase struct{}

// NewCoveragePhase returns the coverage recommendation phase.
func NewCoveragePhase() Phase { return coveragePhase{} }

func (coveragePhase) ID() string     { return PhaseCoverage }
func (coveragePhase) Semantic() bool { return true }

func (coveragePhase) Check(art *artifact.Artifact, _ *registry.Snapshot, rules *RuleSet) Verdict {
	table := rules.Coverage[art.Kind]
	if len(table) == 0 {
		return pass(PhaseCoverage)
	}

	body := strings.ToLower(art.Body)
	referenced := make(map[string]bool, len(art.Header.Skills))
	for _, ref := range art.Header.Skills {
		referenced[ref] = true
	}

	var missing []string
	var fixes []FixDescriptor
	for _, rule := range table {
		if referenced[rule.Recommend] {
			continue
		}
		if !containsAny(body, rule.Keywords) {
			continue
		}
		missing = append(missing, rule.Recommend)
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-coverage-consider-" + rule.Recommend,
			PhaseID: PhaseCoverage,
			Kind:    FixSemantic,
			Note:    fmt.Sprintf("body mentions %s; consider referencing skill %q", strings.Join(rule.Keywords, "/"), rule.Recommend),
		})
	}

	if len(missing) == 0 {
		return pass(PhaseCoverage)
	}

	return Verdict{
		PhaseID:  PhaseCoverage,
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("likely-missing references: %s", strings.Join(missing, ", ")),
		Fixes:    fixes,
	}
}
