package audit

import (
	"fmt"
	"strings"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// bodyPhase checks body efficiency: the line count must stay under the
// kind-specific ceiling, and the body must reference skill content rather
// than duplicating it verbatim. Trimming a body requires judgment, so fixes
// are semantic proposals.
type bodyPhase struct{}

// NewBodyPhase returns the body efficiency phase.
func NewBodyPhase() Phase { return bodyPhase{} }

func (bodyPhase) ID() string     { return PhaseBody }
func (bodyPhase) Semantic() bool { return true }

func (bodyPhase) Check(art *artifact.Artifact, snap *registry.Snapshot, rules *RuleSet) Verdict {
	var violations []string
	var fixes []FixDescriptor

	if ceiling := rules.LineCeiling(art.Kind); ceiling > 0 && art.LineCount > ceiling {
		violations = append(violations, fmt.Sprintf("body has %d lines, ceiling for %s artifacts is %d", art.LineCount, art.Kind, ceiling))
		fixes = append(fixes, FixDescriptor{
			ID:      "phase-body-trim",
			PhaseID: PhaseBody,
			Kind:    FixSemantic,
			Note:    fmt.Sprintf("move detail into referenced skills until the body is at most %d lines", ceiling),
		})
	}

	for _, ref := range art.Header.Skills {
		refArt, ok := snap.Resolve(ref)
		if !ok || !refArt.Parseable() {
			continue
		}
		if para := duplicatedParagraph(art.Body, refArt.Body, rules.DuplicationMinChars); para != "" {
			violations = append(violations, fmt.Sprintf("body duplicates content of referenced skill %q verbatim", ref))
			fixes = append(fixes, FixDescriptor{
				ID:      "phase-body-dedupe-" + ref,
				PhaseID: PhaseBody,
				Kind:    FixSemantic,
				Body: &BodyEdit{
					Proposed: fmt.Sprintf("replace the duplicated paragraph with a reference to %s", ref),
				},
				Note: truncateForNote(para),
			})
		}
	}

	if len(violations) == 0 {
		return pass(PhaseBody)
	}

	return Verdict{
		PhaseID:  PhaseBody,
		Severity: SeverityFail,
		Message:  strings.Join(violations, "; "),
		Fixes:    fixes,
	}
}

// duplicatedParagraph returns the first paragraph of ref that appears
// verbatim in body, ignoring paragraphs shorter than minChars.
func duplicatedParagraph(body, ref string, minChars int) string {
	if minChars <= 0 {
		minChars = 1
	}
	for _, para := range strings.Split(ref, "\n\n") {
		para = strings.TrimSpace(para)
		if len(para) < minChars {
			continue
		}
		if strings.Contains(body, para) {
			return para
		}
	}
	return ""
}

func truncateForNote(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
