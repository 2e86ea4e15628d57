package audit

import (
	"fmt"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// invocationPhase enforces explicit invocation of mandatory sub-references.
// An artifact that declares skills in its header must invoke each of them
// in the body with the greppable marker syntax, and must carry at least one
// counter-rationalization clause so the executing model cannot talk itself
// out of the invocation.
type invocationPhase struct{}

// NewInvocationPhase returns the explicit-invocation enforcement phase.
func NewInvocationPhase() Phase { return invocationPhase{} }

func (invocationPhase) ID() string     { return PhaseInvocation }
func (invocationPhase) Semantic() bool { return true }

func (invocationPhase) Check(art *artifact.Artifact, _ *registry.Snapshot, rules *RuleSet) Verdict {
	if len(art.Header.Skills) == 0 {
		return pass(PhaseInvocation)
	}

	var violations []string
	var fixes []FixDescriptor

	for _, ref := range art.Header.Skills {
		marker := rules.InvocationMarker(ref)
		if strings.Contains(art.Body, marker) {
			continue
		}
		violations = append(violations, fmt.Sprintf("body never invokes mandatory reference %q with marker %s", ref, marker))
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-invocation-add-" + ref,
			PhaseID: PhaseInvocation,
			Kind:    FixSemantic,
			Body: &BodyEdit{
				Proposed: fmt.Sprintf("invoke %s where the body relies on %s", marker, ref),
			},
			Note: "state explicitly where the reference must be invoked",
		})
	}

	if !containsAny(strings.ToLower(art.Body), rules.CounterRationalizationMarkers) {
		violations = append(violations, "body lacks a counter-rationalization clause")
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-invocation-add-counter-rationalization",
			PhaseID: PhaseInvocation,
			Kind:    FixSemantic,
			Note:    fmt.Sprintf("add a clause using one of: %s", strings.Join(rules.CounterRationalizationMarkers, ", ")),
		})
	}

	if len(violations) == 0 {
		return pass(PhaseInvocation)
	}

	return Verdict{
		PhaseID:  PhaseInvocation,
		Severity: SeverityFail,
		Message:  strings.Join(violations, "; "),
		Fixes:    fixes,
	}
}
