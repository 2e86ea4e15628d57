package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defkit/defkit/pkg/artifact"
)

func TestEngineDefaultPhaseOrder(t *testing.T) {
	engine := NewEngine(nil)
	assert.Equal(t, []string{
		PhaseStructural,
		PhaseDescription,
		PhaseBody,
		PhaseReference,
		PhaseContract,
		PhaseCoverage,
		PhaseInvocation,
	}, engine.PhaseIDs())
}

func TestEngineAuditCompliantArtifact(t *testing.T) {
	skill := compliantSkill(t)
	task := compliantTask(t)
	snap := snapshotOf(task, skill)
	engine := NewEngine(nil)

	for _, art := range snap.Artifacts() {
		report := engine.Audit(context.Background(), art, snap)
		assert.Equal(t, SeverityPass, report.Status, "artifact %s", art.Identifier)
		require.Len(t, report.Verdicts, 7)
		for _, v := range report.Verdicts {
			assert.Equal(t, SeverityPass, v.Severity, "phase %s", v.PhaseID)
		}
	}
}

func TestEngineStatusAggregation(t *testing.T) {
	t.Run("critical failure fails the artifact", func(t *testing.T) {
		// Phantom reference fails the critical reference-integrity phase.
		art := mustParse(t, "deploy-runner", phantomRefContent, artifact.LocationPrimary)
		report := NewEngine(nil).Audit(context.Background(), art, snapshotOf(art))
		assert.Equal(t, SeverityFail, report.Status)
	})

	t.Run("non-critical failure degrades to warn", func(t *testing.T) {
		// Missing contract sections fail a non-critical phase only.
		content := "---\nname: quiet-task\ndescription: Use when quiet. <example>hush</example>\ntype: task\n---\n\nJust prose.\n"
		art := mustParse(t, "quiet-task", content, artifact.LocationPrimary)
		report := NewEngine(nil).Audit(context.Background(), art, snapshotOf(art))
		assert.Equal(t, SeverityWarn, report.Status)

		verdict, ok := report.Verdict(PhaseContract)
		require.True(t, ok)
		assert.Equal(t, SeverityFail, verdict.Severity)
	})

	t.Run("coverage warning degrades to warn", func(t *testing.T) {
		content := "---\nname: committer\ndescription: Use when committing. <example>commit</example>\ntype: task\n---\n\nStage and commit.\n\n## Output\n\nA commit.\n\n## Stop Conditions\n\nStop after push.\n"
		art := mustParse(t, "committer", content, artifact.LocationPrimary)
		report := NewEngine(nil).Audit(context.Background(), art, snapshotOf(art))
		assert.Equal(t, SeverityWarn, report.Status)
	})
}

func TestEngineUnparseableArtifact(t *testing.T) {
	broken := artifact.Parse("broken", []byte("no frontmatter\n"), artifact.LocationLibrary)
	require.False(t, broken.Parseable())

	report := NewEngine(nil).Audit(context.Background(), broken, snapshotOf(broken))
	assert.Equal(t, SeverityFail, report.Status)

	// Only the non-semantic phases run; each fails with the parse error.
	require.Len(t, report.Verdicts, 2)
	for _, v := range report.Verdicts {
		assert.Equal(t, SeverityFail, v.Severity)
		assert.Contains(t, v.Message, "artifact unparseable")
	}
	ids := []string{report.Verdicts[0].PhaseID, report.Verdicts[1].PhaseID}
	assert.Equal(t, []string{PhaseStructural, PhaseReference}, ids)
}

func TestEngineAuditPhasesSubset(t *testing.T) {
	art := mustParse(t, "deploy-runner", phantomRefContent, artifact.LocationPrimary)
	report := NewEngine(nil).AuditPhases(context.Background(), art, snapshotOf(art), []string{PhaseReference})

	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, PhaseReference, report.Verdicts[0].PhaseID)
}

func TestEngineValidatePhases(t *testing.T) {
	engine := NewEngine(nil)

	assert.NoError(t, engine.ValidatePhases(nil))
	assert.NoError(t, engine.ValidatePhases([]string{PhaseStructural, PhaseReference}))

	err := engine.ValidatePhases([]string{"refrence-integrity"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refrence-integrity")
	assert.Contains(t, err.Error(), PhaseReference)
}

func TestEngineAuditPhasesUnknownIDRunsNothing(t *testing.T) {
	// A misspelled phase id matches no phase, so validation has to happen
	// up front. The report itself degenerates to an empty pass.
	art := mustParse(t, "deploy-runner", phantomRefContent, artifact.LocationPrimary)
	report := NewEngine(nil).AuditPhases(context.Background(), art, snapshotOf(art), []string{"refrence-integrity"})

	assert.Empty(t, report.Verdicts)
	assert.Equal(t, SeverityPass, report.Status)
}

func TestEngineRunPhase(t *testing.T) {
	art := compliantSkill(t)

	verdict, err := NewEngine(nil).RunPhase(art, snapshotOf(art), PhaseStructural)
	require.NoError(t, err)
	assert.Equal(t, SeverityPass, verdict.Severity)

	_, err = NewEngine(nil).RunPhase(art, snapshotOf(art), "no-such-phase")
	assert.Error(t, err)
}

func TestEngineReportFixAccessors(t *testing.T) {
	content := "---\nname: messy\ndescription: No markers here.\ntype: task\ntools:\n  - Read\n  - Grep\n---\n\nProse only.\n"
	art := mustParse(t, "messy", content, artifact.LocationPrimary)
	report := NewEngine(nil).Audit(context.Background(), art, snapshotOf(art))

	det := report.DeterministicFixes()
	require.NotEmpty(t, det)
	for _, f := range det {
		assert.Equal(t, FixDeterministic, f.Kind)
	}

	sem := report.SemanticFixes()
	require.NotEmpty(t, sem)
	for _, f := range sem {
		assert.Equal(t, FixSemantic, f.Kind)
	}
}

func TestEngineAuditAll(t *testing.T) {
	skill := compliantSkill(t)
	task := compliantTask(t)
	phantom := mustParse(t, "deploy-runner", phantomRefContent, artifact.LocationPrimary)
	broken := artifact.Parse("broken", []byte("no frontmatter\n"), artifact.LocationLibrary)
	snap := snapshotOf(task, phantom, skill, broken)

	batch, err := NewEngine(nil).AuditAll(context.Background(), snap)
	require.NoError(t, err)
	require.NotEmpty(t, batch.ID)
	require.Len(t, batch.Reports, 4)

	// One broken artifact never aborts the others.
	assert.Equal(t, 2, batch.Summary.Pass)
	assert.Equal(t, 2, batch.Summary.Fail)
	assert.Equal(t, 0, batch.Summary.Warn)
	assert.Equal(t, 1, batch.Summary.ParseErrors)

	// Results stay attributable per artifact regardless of worker order.
	for i, report := range batch.Reports {
		assert.Same(t, snap.Artifacts()[i], report.Artifact)
	}
}

func TestEngineAuditAllCancellation(t *testing.T) {
	arts := make([]*artifact.Artifact, 0, 32)
	for i := 0; i < 32; i++ {
		arts = append(arts, compliantSkill(t))
	}
	snap := snapshotOf(arts...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(nil).AuditAll(ctx, snap)
	assert.Error(t, err)
}

func TestEngineBatchWithFoldedDescription(t *testing.T) {
	folded := mustParse(t, "folded", "---\nname: folded\ndescription: >\n  Use when things\n  span lines. <example>go</example>\n---\n\nBody.\n\n## Output\n\nStuff.\n\n## Stop Conditions\n\nStop.\n", artifact.LocationLibrary)
	healthy1 := compliantSkill(t)
	healthy2 := compliantTask(t)
	snap := snapshotOf(healthy2, folded, healthy1)

	batch, err := NewEngine(nil).AuditAll(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Summary.Fail)
	assert.Equal(t, 2, batch.Summary.Pass)

	var failed *Report
	for _, r := range batch.Reports {
		if r.Status == SeverityFail {
			failed = r
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "folded", failed.Artifact.Identifier)

	verdict, ok := failed.Verdict(PhaseStructural)
	require.True(t, ok)
	assert.Equal(t, SeverityFail, verdict.Severity)
	assert.Contains(t, verdict.Message, FoldedDescriptionMessage)
}

func TestEngineCustomRuleSet(t *testing.T) {
	rules := DefaultRuleSet()
	rules.CriticalPhases = []string{PhaseStructural}

	// With reference-integrity demoted, a phantom ref only warns.
	art := mustParse(t, "deploy-runner", phantomRefContent, artifact.LocationPrimary)
	report := NewEngine(rules).Audit(context.Background(), art, snapshotOf(art))
	assert.Equal(t, SeverityWarn, report.Status)
}
