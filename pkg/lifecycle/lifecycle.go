// Package lifecycle gates artifact creation and update behind a
// red-green-refactor state machine. The orchestrator never authors content
// itself: it verifies, via the audit, remediation, and search engines, that
// each gate's evidence holds before advancing.
package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/audit"
	"github.com/defkit/defkit/pkg/logger"
	"github.com/defkit/defkit/pkg/registry"
	"github.com/defkit/defkit/pkg/remedy"
	"github.com/defkit/defkit/pkg/search"
)

// State is one step of the red-green-refactor sequence.
type State string

const (
	StateRedPending      State = "red-pending"
	StateRedProven       State = "red-proven"
	StateGreenPending    State = "green-pending"
	StateGreenProven     State = "green-proven"
	StateRefactorPending State = "refactor-pending"
	StateAccepted        State = "accepted"
	// StateRejected is terminal and carries the last verdict set.
	StateRejected State = "rejected"
)

// TransitionError reports an attempt to advance from the wrong state.
type TransitionError struct {
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Op, e.From)
}

// Orchestrator drives one artifact through the lifecycle. It is not safe
// for concurrent use; one orchestrator governs one artifact.
type Orchestrator struct {
	auditor  *audit.Engine
	remedier *remedy.Engine
	searcher *search.Engine

	identifier string
	state      State
	// lastVerdicts is the verdict set from the most recent audit, surfaced
	// to the caller on rejection.
	lastVerdicts []audit.Verdict
}

// NewOrchestrator starts the lifecycle for one artifact identifier in
// RedPending.
func NewOrchestrator(identifier string, auditor *audit.Engine, remedier *remedy.Engine, searcher *search.Engine) *Orchestrator {
	return &Orchestrator{
		auditor:    auditor,
		remedier:   remedier,
		searcher:   searcher,
		identifier: identifier,
		state:      StateRedPending,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state
}

// LastVerdicts returns the verdict set from the most recent audit pass.
func (o *Orchestrator) LastVerdicts() []audit.Verdict {
	return o.lastVerdicts
}

// ProveRed records external proof that the artifact or the behavior it
// governs is currently absent or failing. The proof itself is the caller's
// responsibility; the orchestrator only gates on it being asserted.
func (o *Orchestrator) ProveRed(ctx context.Context, proven bool) error {
	if o.state != StateRedPending {
		return &TransitionError{From: o.state, Op: "prove red"}
	}
	if !proven {
		return errors.New("red proof not supplied")
	}
	o.state = StateRedProven
	logger.G(ctx).WithField("artifact", o.identifier).Debug("Red proven")
	return nil
}

// ProveGreen audits the authored artifact. The gate holds when no critical
// phase fails; otherwise the orchestrator rejects.
func (o *Orchestrator) ProveGreen(ctx context.Context, art *artifact.Artifact, snap *registry.Snapshot) error {
	if o.state != StateRedProven && o.state != StateGreenPending {
		return &TransitionError{From: o.state, Op: "prove green"}
	}
	o.state = StateGreenPending

	report := o.auditor.Audit(ctx, art, snap)
	o.lastVerdicts = report.Verdicts
	if report.Status == audit.SeverityFail {
		o.state = StateRejected
		return errors.Errorf("artifact %s failed a critical phase", o.identifier)
	}

	o.state = StateGreenProven
	logger.G(ctx).WithField("artifact", o.identifier).Debug("Green proven")
	return nil
}

// Accept runs the refactor gate: auto-remediation, a second audit pass, and
// a discovery smoke-check that the artifact is found by searching its own
// declared trigger phrase. Persistent critical failure rejects.
func (o *Orchestrator) Accept(ctx context.Context, art *artifact.Artifact, snap *registry.Snapshot) error {
	if o.state != StateGreenProven && o.state != StateRefactorPending {
		return &TransitionError{From: o.state, Op: "accept"}
	}
	o.state = StateRefactorPending

	report := o.auditor.Audit(ctx, art, snap)
	o.lastVerdicts = report.Verdicts

	result, err := o.remedier.Remediate(ctx, art, report.Verdicts, snap, remedy.ModeAutoApply)
	if err != nil {
		o.state = StateRejected
		return errors.Wrap(err, "auto-remediation failed")
	}
	current := result.Artifact
	if len(result.Applied) > 0 {
		// Applied fixes rewrote the file; the re-audit and the discovery
		// check must see the new state, not the record from discovery time.
		snap = refreshSnapshot(snap, current)
	}

	report = o.auditor.Audit(ctx, current, snap)
	o.lastVerdicts = report.Verdicts
	if report.Status == audit.SeverityFail {
		o.state = StateRejected
		return errors.Errorf("artifact %s still fails a critical phase after remediation", o.identifier)
	}

	if err := o.smokeCheck(current, snap); err != nil {
		o.state = StateRejected
		return err
	}

	o.state = StateAccepted
	logger.G(ctx).WithField("artifact", o.identifier).Info("Artifact accepted")
	return nil
}

// Reject forces the terminal state, keeping the last verdict set for the
// caller.
func (o *Orchestrator) Reject() {
	o.state = StateRejected
}

// smokeCheck closes the loop between indexing and audit: the artifact must
// be discoverable by its own declared trigger phrase.
func (o *Orchestrator) smokeCheck(art *artifact.Artifact, snap *registry.Snapshot) error {
	query := triggerPhrase(art, o.auditor.Rules())
	if query == "" {
		return errors.Errorf("artifact %s declares no trigger phrase to smoke-check", o.identifier)
	}

	results := o.searcher.Search(query, snap, search.Filters{}, 0)
	for _, r := range results {
		if r.Artifact.Identifier == art.Identifier {
			return nil
		}
	}
	return errors.Errorf("artifact %s is not discoverable by its own trigger phrase %q", o.identifier, query)
}

// refreshSnapshot swaps the remediated artifact in for its stale discovery
// record, preserving every other entry. An artifact absent from the
// snapshot stays absent, so the discovery check still reports it.
func refreshSnapshot(snap *registry.Snapshot, art *artifact.Artifact) *registry.Snapshot {
	arts := make([]*artifact.Artifact, 0, snap.Len())
	for _, a := range snap.Artifacts() {
		if a.Identifier == art.Identifier && a.Location == art.Location {
			arts = append(arts, art)
			continue
		}
		arts = append(arts, a)
	}
	return registry.NewSnapshot(arts)
}

// triggerPhrase extracts the marker-anchored trigger fragment from the
// description.
func triggerPhrase(art *artifact.Artifact, rules *audit.RuleSet) string {
	desc := art.Header.Description
	lower := strings.ToLower(desc)
	for _, marker := range rules.TriggerMarkers {
		idx := strings.Index(lower, strings.ToLower(marker))
		if idx < 0 {
			continue
		}
		fragment := desc[idx:]
		if cut := strings.IndexAny(fragment, ".\n"); cut > 0 {
			fragment = fragment[:cut]
		}
		return fragment
	}
	return ""
}
