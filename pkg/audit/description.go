package audit

import (
	"fmt"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// descriptionPhase checks that the description tells the host runtime when
// to invoke the artifact: an explicit trigger phrase, at least one worked
// example block, and a bounded length. Writing a good description needs
// judgment, so every fix here is a semantic proposal.
type descriptionPhase struct{}

// NewDescriptionPhase returns the description quality phase.
func NewDescriptionPhase() Phase { return descriptionPhase{} }

func (descriptionPhase) ID() string     { return PhaseDescription }
func (descriptionPhase) Semantic() bool { return true }

func (descriptionPhase) Check(art *artifact.Artifact, _ *registry.Snapshot, rules *RuleSet) Verdict {
	desc := art.Header.Description
	lower := strings.ToLower(desc)

	var violations []string
	var fixes []FixDescriptor

	if !containsAny(lower, rules.TriggerMarkers) {
		violations = append(violations, "description lacks an explicit trigger phrase")
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-description-add-trigger",
			PhaseID: PhaseDescription,
			Kind:    FixSemantic,
			Note:    fmt.Sprintf("state when to invoke this artifact using one of: %s", strings.Join(rules.TriggerMarkers, ", ")),
		})
	}
	if !containsAny(lower, rules.ExampleMarkers) {
		violations = append(violations, "description lacks a worked example block")
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-description-add-example",
			PhaseID: PhaseDescription,
			Kind:    FixSemantic,
			Note:    "add at least one worked example showing a triggering request and the expected behavior",
		})
	}
	if rules.DescriptionMaxLength > 0 && len(desc) > rules.DescriptionMaxLength {
		violations = append(violations, fmt.Sprintf("description length %d exceeds ceiling %d", len(desc), rules.DescriptionMaxLength))
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-description-shorten",
			PhaseID: PhaseDescription,
			Kind:    FixSemantic,
			Note:    fmt.Sprintf("condense the description to at most %d characters", rules.DescriptionMaxLength),
		})
	}

	if len(violations) == 0 {
		return pass(PhaseDescription)
	}

	return Verdict{
		PhaseID:  PhaseDescription,
		Severity: SeverityFail,
		Message:  strings.Join(violations, "; "),
		Fixes:    fixes,
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
