// Package audit runs an ordered set of independent rule phases over parsed
// definition artifacts. Each phase is a pure function of one artifact and
// an immutable registry snapshot, so phases can execute in any order and
// batches can fan out across a worker pool. Report ordering is a
// presentation concern only.
package audit

import (
	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

// Severity is the outcome of one phase check.
type Severity string

const (
	SeverityPass Severity = "pass"
	SeverityWarn Severity = "warn"
	SeverityFail Severity = "fail"
)

// FixKind distinguishes fixes the engine can apply and verify on its own
// from fixes that require content judgment. Semantic fixes are only ever
// surfaced as proposals.
type FixKind string

const (
	FixDeterministic FixKind = "deterministic"
	FixSemantic      FixKind = "semantic"
)

// Phase identifiers. The set and order of phases is configuration; these
// are the built-in categories.
const (
	PhaseStructural  = "structural-syntax"
	PhaseDescription = "description-quality"
	PhaseBody        = "body-efficiency"
	PhaseReference   = "reference-integrity"
	PhaseContract    = "output-contract"
	PhaseCoverage    = "coverage"
	PhaseInvocation  = "explicit-invocation"
)

// BodyEdit is a proposed change to the artifact body. Semantic proposals
// carry guidance for the external decision-maker; deterministic fixes never
// edit the body.
type BodyEdit struct {
	// Section names the body section the edit targets, empty for the whole
	// body.
	Section string `json:"section,omitempty"`
	// Proposed is the suggested content or guidance.
	Proposed string `json:"proposed"`
}

// FixDescriptor describes one fix for one violation. IDs are stable and
// greppable so a caller can apply a selected fix by id.
type FixDescriptor struct {
	ID      string  `json:"id"`
	PhaseID string  `json:"phaseId"`
	Kind    FixKind `json:"kind"`
	// Header is the proposed replacement metadata header, nil when the fix
	// does not touch the header.
	Header *artifact.Metadata `json:"header,omitempty"`
	// Body is the proposed body edit, nil when the fix does not touch the
	// body.
	Body *BodyEdit `json:"body,omitempty"`
	// Note explains the fix to a human or orchestrating agent.
	Note string `json:"note,omitempty"`
}

// Verdict is the outcome of running one phase against one artifact. A phase
// may attach several fix descriptors when it found several independent
// violations.
type Verdict struct {
	PhaseID  string          `json:"phaseId"`
	Severity Severity        `json:"severity"`
	Message  string          `json:"message"`
	Fixes    []FixDescriptor `json:"fixes,omitempty"`
}

// Phase is one independent rule check. Check must not depend on any other
// phase's verdict, only on the artifact and the registry snapshot.
type Phase interface {
	ID() string
	// Semantic phases are skipped for unparseable artifacts; structural
	// phases fail them automatically.
	Semantic() bool
	Check(art *artifact.Artifact, snap *registry.Snapshot, rules *RuleSet) Verdict
}

func pass(phaseID string) Verdict {
	return Verdict{PhaseID: phaseID, Severity: SeverityPass, Message: "ok"}
}
