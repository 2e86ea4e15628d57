package audit

import (
	"fmt"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// contractPhase checks that the body declares its output shape and its
// stop/handoff conditions in machine-checkable sections, so collaborating
// workflows can consume the artifact's results without reading prose.
type contractPhase struct{}

// NewContractPhase returns the output/escalation contract phase.
func NewContractPhase() Phase { return contractPhase{} }

func (contractPhase) ID() string     { return PhaseContract }
func (contractPhase) Semantic() bool { return true }

func (contractPhase) Check(art *artifact.Artifact, _ *registry.Snapshot, rules *RuleSet) Verdict {
	var violations []string
	var fixes []FixDescriptor

	if name, ok := hasAnySection(art, rules.OutputSections); !ok {
		violations = append(violations, "body lacks an output shape declaration")
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-contract-add-output",
			PhaseID: PhaseContract,
			Kind:    FixSemantic,
			Body: &BodyEdit{
				Section:  name,
				Proposed: "declare the expected output shape of this artifact",
			},
			Note: fmt.Sprintf("add one of these sections: %s", strings.Join(rules.OutputSections, ", ")),
		})
	}
	if name, ok := hasAnySection(art, rules.StopSections); !ok {
		violations = append(violations, "body lacks stop/handoff conditions")
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-contract-add-stop",
			PhaseID: PhaseContract,
			Kind:    FixSemantic,
			Body: &BodyEdit{
				Section:  name,
				Proposed: "declare when this artifact must stop and hand off",
			},
			Note: fmt.Sprintf("add one of these sections: %s", strings.Join(rules.StopSections, ", ")),
		})
	}

	if len(violations) == 0 {
		return pass(PhaseContract)
	}

	return Verdict{
		PhaseID:  PhaseContract,
		Severity: SeverityFail,
		Message:  strings.Join(violations, "; "),
		Fixes:    fixes,
	}
}

func hasAnySection(art *artifact.Artifact, names []string) (string, bool) {
	first := ""
	for _, name := range names {
		if first == "" {
			first = name
		}
		if _, ok := art.Section(name); ok {
			return name, true
		}
	}
	return first, false
}
