package audit

import (
	"github.com/defkit/defkit/pkg/artifact"
)

// CoverageRule recommends a reference when body text matches any of its
// keywords but the artifact does not already reference it.
type CoverageRule struct {
	Keywords  []string
	Recommend string
}

// RuleSet is the injected, immutable configuration for the audit engine.
// Engines never consult process-wide state, so tests can substitute minimal
// rule sets.
type RuleSet struct {
	// CriticalPhases fail the whole artifact when they fail. Everything
	// else only degrades the artifact to Warn.
	CriticalPhases []string

	// LineCeilings bounds body length per artifact kind.
	LineCeilings map[artifact.Kind]int

	// DescriptionMaxLength bounds the description field.
	DescriptionMaxLength int

	// TriggerMarkers are phrases a description must contain one of, so the
	// host runtime can decide when to invoke the artifact.
	TriggerMarkers []string

	// ExampleMarkers detect a worked example block in the description.
	ExampleMarkers []string

	// ToolAllowlist holds glob patterns of permitted tool entries per kind.
	// A kind with no entry permits nothing.
	ToolAllowlist map[artifact.Kind][]string

	// OutputSections and StopSections are the section names accepted as the
	// output-shape and stop/handoff declarations.
	OutputSections []string
	StopSections   []string

	// InvocationMarkerPrefix and InvocationMarkerSuffix bracket a mandatory
	// sub-reference invocation in the body, e.g. Skill(foo).
	InvocationMarkerPrefix string
	InvocationMarkerSuffix string

	// CounterRationalizationMarkers are phrases that count as an explicit
	// counter-rationalization clause.
	CounterRationalizationMarkers []string

	// Coverage holds the kind-specific recommended-reference tables.
	Coverage map[artifact.Kind][]CoverageRule

	// DuplicationMinChars is the smallest paragraph considered when
	// detecting verbatim duplication of referenced skill content.
	DuplicationMinChars int

	// ReportOrder fixes the phase order in reports. Phases not listed are
	// appended in construction order.
	ReportOrder []string
}

// DefaultRuleSet returns the built-in rule configuration.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		CriticalPhases: []string{PhaseStructural, PhaseReference},
		LineCeilings: map[artifact.Kind]int{
			artifact.KindTask:    300,
			artifact.KindSkill:   500,
			artifact.KindGateway: 150,
		},
		DescriptionMaxLength: 1024,
		TriggerMarkers: []string{
			"use when",
			"use this",
			"invoke when",
			"must be used",
		},
		ExampleMarkers: []string{
			"<example>",
			"example:",
		},
		ToolAllowlist: map[artifact.Kind][]string{
			artifact.KindTask:    {"*"},
			artifact.KindSkill:   {"Read", "Grep", "Glob", "Bash", "Write", "Edit"},
			artifact.KindGateway: {"Read"},
		},
		OutputSections: []string{"Output", "Output Format", "Report"},
		StopSections:   []string{"Stop Conditions", "Handoff", "Escalation"},

		InvocationMarkerPrefix: "Skill(",
		InvocationMarkerSuffix: ")",
		CounterRationalizationMarkers: []string{
			"even if",
			"no exceptions",
			"do not skip",
		},

		Coverage: map[artifact.Kind][]CoverageRule{
			artifact.KindTask: {
				{Keywords: []string{"git ", "commit", "branch"}, Recommend: "git-workflow"},
				{Keywords: []string{"test", "tdd", "assert"}, Recommend: "testing-discipline"},
			},
		},

		DuplicationMinChars: 120,

		ReportOrder: []string{
			PhaseStructural,
			PhaseDescription,
			PhaseBody,
			PhaseReference,
			PhaseContract,
			PhaseCoverage,
			PhaseInvocation,
		},
	}
}

// IsCritical reports whether the phase participates in hard failure
// aggregation.
func (r *RuleSet) IsCritical(phaseID string) bool {
	for _, id := range r.CriticalPhases {
		if id == phaseID {
			return true
		}
	}
	return false
}

// LineCeiling returns the body line ceiling for a kind, 0 meaning
// unbounded.
func (r *RuleSet) LineCeiling(kind artifact.Kind) int {
	if r.LineCeilings == nil {
		return 0
	}
	return r.LineCeilings[kind]
}

// InvocationMarker renders the greppable invocation marker for a reference.
func (r *RuleSet) InvocationMarker(ref string) string {
	return r.InvocationMarkerPrefix + ref + r.InvocationMarkerSuffix
}
