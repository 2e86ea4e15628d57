package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/logger"
	"github.com/defkit/defkit/pkg/registry"
)

// batchConcurrency bounds parallel artifact audits in a batch run.
const batchConcurrency = 8

// Report is the verdict set for one artifact, with the aggregated status.
type Report struct {
	Artifact *artifact.Artifact
	Verdicts []Verdict
	// Status is Fail iff a critical phase failed, Warn when any other
	// phase failed or warned, Pass otherwise.
	Status Severity
}

// Verdict returns the verdict for a phase, if the phase ran.
func (r *Report) Verdict(phaseID string) (Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.PhaseID == phaseID {
			return v, true
		}
	}
	return Verdict{}, false
}

// DeterministicFixes returns all deterministic fix descriptors in the
// report, in verdict order.
func (r *Report) DeterministicFixes() []FixDescriptor {
	var fixes []FixDescriptor
	for _, v := range r.Verdicts {
		for _, f := range v.Fixes {
			if f.Kind == FixDeterministic {
				fixes = append(fixes, f)
			}
		}
	}
	return fixes
}

// SemanticFixes returns all semantic fix proposals in the report.
func (r *Report) SemanticFixes() []FixDescriptor {
	var fixes []FixDescriptor
	for _, v := range r.Verdicts {
		for _, f := range v.Fixes {
			if f.Kind == FixSemantic {
				fixes = append(fixes, f)
			}
		}
	}
	return fixes
}

// Summary aggregates a batch run.
type Summary struct {
	Pass        int
	Warn        int
	Fail        int
	ParseErrors int
}

// BatchReport holds per-artifact reports for one batch run. Batch runs
// always complete: one broken artifact never aborts the others.
type BatchReport struct {
	ID      string
	Reports []*Report
	Summary Summary
}

// Engine audits artifacts against an injected rule set. The engine holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	rules  *RuleSet
	phases []Phase
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPhases replaces the default phase list, letting tests run minimal
// rule sets.
func WithPhases(phases ...Phase) EngineOption {
	return func(e *Engine) {
		e.phases = phases
	}
}

// DefaultPhases returns the built-in phases in report order.
func DefaultPhases() []Phase {
	return []Phase{
		NewStructuralPhase(),
		NewDescriptionPhase(),
		NewBodyPhase(),
		NewReferencePhase(),
		NewContractPhase(),
		NewCoveragePhase(),
		NewInvocationPhase(),
	}
}

// NewEngine creates an audit engine. A nil rule set selects the defaults.
func NewEngine(rules *RuleSet, opts ...EngineOption) *Engine {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	e := &Engine{rules: rules, phases: DefaultPhases()}
	for _, opt := range opts {
		opt(e)
	}
	e.phases = orderPhases(e.phases, rules.ReportOrder)
	return e
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() *RuleSet {
	return e.rules
}

// PhaseIDs returns the engine's phase ids in report order.
func (e *Engine) PhaseIDs() []string {
	ids := make([]string, 0, len(e.phases))
	for _, p := range e.phases {
		ids = append(ids, p.ID())
	}
	return ids
}

// Audit runs every phase over one artifact. For unparseable artifacts the
// structural phases fail automatically and the semantic phases are skipped,
// since they cannot meaningfully run on unparsed input.
func (e *Engine) Audit(ctx context.Context, art *artifact.Artifact, snap *registry.Snapshot) *Report {
	return e.AuditPhases(ctx, art, snap, nil)
}

// ValidatePhases checks that every id names a configured phase. Phase
// subsets quietly skip ids they do not recognize, so callers taking ids
// from user input must validate them first.
func (e *Engine) ValidatePhases(phaseIDs []string) error {
	known := make(map[string]bool, len(e.phases))
	for _, p := range e.phases {
		known[p.ID()] = true
	}
	for _, id := range phaseIDs {
		if !known[id] {
			return errors.Errorf("unknown phase %q, valid phases are: %s", id, strings.Join(e.PhaseIDs(), ", "))
		}
	}
	return nil
}

// AuditPhases runs a subset of phases by id; a nil or empty subset runs all
// of them. Ids that name no phase are ignored, see ValidatePhases.
func (e *Engine) AuditPhases(ctx context.Context, art *artifact.Artifact, snap *registry.Snapshot, phaseIDs []string) *Report {
	subset := make(map[string]bool, len(phaseIDs))
	for _, id := range phaseIDs {
		subset[id] = true
	}

	report := &Report{Artifact: art}
	for _, phase := range e.phases {
		if len(subset) > 0 && !subset[phase.ID()] {
			continue
		}

		if !art.Parseable() {
			if phase.Semantic() {
				continue
			}
			report.Verdicts = append(report.Verdicts, Verdict{
				PhaseID:  phase.ID(),
				Severity: SeverityFail,
				Message:  fmt.Sprintf("artifact unparseable: %v", art.ParseErr),
			})
			continue
		}

		report.Verdicts = append(report.Verdicts, phase.Check(art, snap, e.rules))
	}

	report.Status = e.aggregate(report.Verdicts)
	logger.G(ctx).WithFields(map[string]interface{}{
		"artifact": art.Identifier,
		"status":   report.Status,
	}).Debug("Audited artifact")

	return report
}

// RunPhase runs a single phase by id. The remediation engine uses it to
// verify a fix against only the phase it came from.
func (e *Engine) RunPhase(art *artifact.Artifact, snap *registry.Snapshot, phaseID string) (Verdict, error) {
	for _, phase := range e.phases {
		if phase.ID() != phaseID {
			continue
		}
		if !art.Parseable() {
			return Verdict{
				PhaseID:  phaseID,
				Severity: SeverityFail,
				Message:  fmt.Sprintf("artifact unparseable: %v", art.ParseErr),
			}, nil
		}
		return phase.Check(art, snap, e.rules), nil
	}
	return Verdict{}, errors.Errorf("unknown phase %q", phaseID)
}

// AuditAll audits every artifact in the snapshot across a bounded worker
// pool. Results are attributable per artifact regardless of execution
// order; cancellation takes effect between artifacts.
func (e *Engine) AuditAll(ctx context.Context, snap *registry.Snapshot) (*BatchReport, error) {
	return e.AuditAllPhases(ctx, snap, nil)
}

// AuditAllPhases is AuditAll restricted to a subset of phases.
func (e *Engine) AuditAllPhases(ctx context.Context, snap *registry.Snapshot, phaseIDs []string) (*BatchReport, error) {
	arts := snap.Artifacts()
	reports := make([]*Report, len(arts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, art := range arts {
		i, art := i, art
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			reports[i] = e.AuditPhases(gctx, art, snap, phaseIDs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "batch audit interrupted")
	}

	batch := &BatchReport{
		ID:      uuid.NewString(),
		Reports: reports,
	}
	for _, r := range reports {
		if !r.Artifact.Parseable() {
			batch.Summary.ParseErrors++
		}
		switch r.Status {
		case SeverityPass:
			batch.Summary.Pass++
		case SeverityWarn:
			batch.Summary.Warn++
		case SeverityFail:
			batch.Summary.Fail++
		}
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"run":  batch.ID,
		"pass": batch.Summary.Pass,
		"warn": batch.Summary.Warn,
		"fail": batch.Summary.Fail,
	}).Info("Batch audit complete")

	return batch, nil
}

// aggregate computes the two-tier artifact status: critical phase failures
// fail the artifact outright, everything else only degrades it to Warn.
func (e *Engine) aggregate(verdicts []Verdict) Severity {
	status := SeverityPass
	for _, v := range verdicts {
		switch {
		case v.Severity == SeverityFail && e.rules.IsCritical(v.PhaseID):
			return SeverityFail
		case v.Severity == SeverityFail || v.Severity == SeverityWarn:
			status = SeverityWarn
		}
	}
	return status
}

func orderPhases(phases []Phase, order []string) []Phase {
	if len(order) == 0 {
		return phases
	}

	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}

	ordered := make([]Phase, 0, len(phases))
	for _, id := range order {
		for _, p := range phases {
			if p.ID() == id {
				ordered = append(ordered, p)
			}
		}
	}
	for _, p := range phases {
		if _, ok := rank[p.ID()]; !ok {
			ordered = append(ordered, p)
		}
	}
	return ordered
}
