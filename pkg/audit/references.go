package audit

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// referencePhase checks that every declared skill reference resolves to an
// existing skill or gateway artifact and that every tool entry matches the
// allow-list for the artifact's kind. A phantom reference is always a
// defect; the fix is removal, never fabricating a replacement.
type referencePhase struct{}

// NewReferencePhase returns the reference integrity phase.
func NewReferencePhase() Phase { return referencePhase{} }

func (referencePhase) ID() string     { return PhaseReference }
func (referencePhase) Semantic() bool { return false }

func (referencePhase) Check(art *artifact.Artifact, snap *registry.Snapshot, rules *RuleSet) Verdict {
	var violations []string
	var fixes []FixDescriptor

	for _, ref := range art.Header.Skills {
		target, ok := snap.Resolve(ref)
		switch {
		case !ok:
			violations = append(violations, fmt.Sprintf("phantom reference: skill %q does not exist", ref))
		case target.Parseable() && target.Kind == artifact.KindTask:
			violations = append(violations, fmt.Sprintf("reference %q resolves to a task artifact, only skills and gateways may be referenced", ref))
		default:
			continue
		}
		fixes = append(fixes, removalFix(art, ref, removeSkill))
	}

	patterns := compileAllowlist(rules.ToolAllowlist[art.Kind])
	for _, tool := range art.Header.Tools {
		if allowed(tool, patterns) {
			continue
		}
		violations = append(violations, fmt.Sprintf("tool %q is not permitted for %s artifacts", tool, art.Kind))
		fixes = append(fixes, removalFix(art, tool, removeTool))
	}

	if len(violations) == 0 {
		return pass(PhaseReference)
	}

	return Verdict{
		PhaseID:  PhaseReference,
		Severity: SeverityFail,
		Message:  strings.Join(violations, "; "),
		Fixes:    fixes,
	}
}

type removalField int

const (
	removeSkill removalField = iota
	removeTool
)

// removalFix proposes the header with one entry removed, in canonical form.
// Applying it twice is a no-op because the entry is simply absent the
// second time.
func removalFix(art *artifact.Artifact, entry string, field removalField) FixDescriptor {
	header := art.Header.Canonical()
	header.UnknownKeys = nil
	switch field {
	case removeSkill:
		header.Skills = removeEntry(header.Skills, entry)
	case removeTool:
		header.Tools = removeEntry(header.Tools, entry)
	}

	return FixDescriptor{
		ID:      "phase-reference-remove-" + entry,
		PhaseID: PhaseReference,
		Kind:    FixDeterministic,
		Header:  &header,
		Note:    fmt.Sprintf("remove %q from the metadata header", entry),
	}
}

func removeEntry(values []string, entry string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != entry {
			out = append(out, v)
		}
	}
	return out
}

func compileAllowlist(patterns []string) []glob.Glob {
	var compiled []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, g)
	}
	return compiled
}

func allowed(tool string, patterns []glob.Glob) bool {
	for _, g := range patterns {
		if g.Match(tool) {
			return true
		}
	}
	return false
}
