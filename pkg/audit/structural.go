package audit

import (
	"fmt"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// FoldedDescriptionMessage is the stable message emitted for a description
// stored as a folded or literal block. Rejection does not depend on the
// block's content because certain parsers degrade every block value the
// same way.
const FoldedDescriptionMessage = "description must be a single physical line with escaped line breaks, not a folded or literal block"

// FixStructuralCanonicalHeader rewrites the metadata header to canonical
// form in one shot.
const FixStructuralCanonicalHeader = "phase-structural-canonical-header"

// structuralPhase checks header field presence, typing, ordering, and the
// single-line description invariant. All of its violations are fixable
// deterministically by rewriting the header to canonical form.
type structuralPhase struct{}

// NewStructuralPhase returns the structural syntax phase.
func NewStructuralPhase() Phase { return structuralPhase{} }

func (structuralPhase) ID() string     { return PhaseStructural }
func (structuralPhase) Semantic() bool { return false }

func (structuralPhase) Check(art *artifact.Artifact, _ *registry.Snapshot, _ *RuleSet) Verdict {
	var violations []string
	header := art.Header

	if !artifact.ValidIdentifier(art.Identifier) {
		violations = append(violations, fmt.Sprintf("identifier %q must be kebab-cased and at most %d characters", art.Identifier, artifact.MaxIdentifierLength))
	}
	if header.Name != art.Identifier {
		violations = append(violations, fmt.Sprintf("name %q must equal identifier %q", header.Name, art.Identifier))
	}
	if art.HasBlockScalar("description") || strings.Contains(header.Description, "\n") {
		violations = append(violations, FoldedDescriptionMessage)
	}
	if header.Type != "" && !knownType(header.Type) {
		violations = append(violations, fmt.Sprintf("unknown type %q, expected task, skill, or gateway", header.Type))
	}
	if !artifact.ValidPermissionMode(header.PermissionMode) {
		violations = append(violations, fmt.Sprintf("unknown permission-mode %q", header.PermissionMode))
	}
	if len(header.Tools) > 0 && !artifact.IsSorted(header.Tools) {
		violations = append(violations, "tools must be in canonical sort order")
	}
	if len(header.Skills) > 0 && !artifact.IsSorted(header.Skills) {
		violations = append(violations, "skills must be in canonical sort order")
	}
	if len(header.UnknownKeys) > 0 {
		violations = append(violations, fmt.Sprintf("unknown header keys: %s", strings.Join(header.UnknownKeys, ", ")))
	}

	if len(violations) == 0 {
		return pass(PhaseStructural)
	}

	canonical := header.Canonical()
	canonical.Name = art.Identifier
	canonical.UnknownKeys = nil
	if !artifact.ValidPermissionMode(canonical.PermissionMode) {
		canonical.PermissionMode = ""
	}
	if canonical.Type != "" && !knownType(canonical.Type) {
		canonical.Type = string(art.Kind)
	}

	return Verdict{
		PhaseID:  PhaseStructural,
		Severity: SeverityFail,
		Message:  strings.Join(violations, "; "),
		Fixes: []FixDescriptor{{
			ID:      FixStructuralCanonicalHeader,
			PhaseID: PhaseStructural,
			Kind:    FixDeterministic,
			Header:  &canonical,
			Note:    "rewrite the metadata header in canonical form",
		}},
	}
}

func knownType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "task", "skill", "gateway":
		return true
	}
	return false
}
