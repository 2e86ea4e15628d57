package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/audit"
	"github.com/defkit/defkit/pkg/registry"
	"github.com/defkit/defkit/pkg/remedy"
	"github.com/defkit/defkit/pkg/search"
)

const compliantContent = `---
name: git-workflow
description: Use when committing or branching. <example>user asks to commit staged changes</example>
---

Keep commits small.

## Output

A clean commit.

## Stop Conditions

Stop once pushed.
`

const phantomRefContent = `---
name: deploy-runner
description: Use when deploying. <example>deploy to staging</example>
type: task
skills:
  - ghost-skill
---

Invoke Skill(ghost-skill) first, even if the target looks healthy.

## Output

Deployment log.

## Stop Conditions

Stop on rollback.
`

func mustParse(t *testing.T, identifier, content string) *artifact.Artifact {
	t.Helper()
	art := artifact.Parse(identifier, []byte(content), artifact.LocationLibrary)
	require.True(t, art.Parseable(), "fixture must parse: %v", art.ParseErr)
	return art
}

func newOrchestrator(identifier string) *Orchestrator {
	auditor := audit.NewEngine(nil)
	return NewOrchestrator(identifier, auditor, remedy.NewEngine(auditor), search.NewEngine(search.Weights{}))
}

func TestLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	art := mustParse(t, "git-workflow", compliantContent)
	snap := registry.NewSnapshot([]*artifact.Artifact{art})

	o := newOrchestrator("git-workflow")
	assert.Equal(t, StateRedPending, o.State())

	require.NoError(t, o.ProveRed(ctx, true))
	assert.Equal(t, StateRedProven, o.State())

	require.NoError(t, o.ProveGreen(ctx, art, snap))
	assert.Equal(t, StateGreenProven, o.State())

	require.NoError(t, o.Accept(ctx, art, snap))
	assert.Equal(t, StateAccepted, o.State())
}

func TestLifecycleRedRequiresProof(t *testing.T) {
	o := newOrchestrator("git-workflow")
	assert.Error(t, o.ProveRed(context.Background(), false))
	assert.Equal(t, StateRedPending, o.State())
}

func TestLifecycleGreenRejectsOnCriticalFailure(t *testing.T) {
	ctx := context.Background()
	art := mustParse(t, "deploy-runner", phantomRefContent)
	snap := registry.NewSnapshot([]*artifact.Artifact{art})

	o := newOrchestrator("deploy-runner")
	require.NoError(t, o.ProveRed(ctx, true))

	err := o.ProveGreen(ctx, art, snap)
	require.Error(t, err)
	assert.Equal(t, StateRejected, o.State())
	assert.NotEmpty(t, o.LastVerdicts(), "rejection carries the last verdict set")
}

func TestLifecycleInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	art := mustParse(t, "git-workflow", compliantContent)
	snap := registry.NewSnapshot([]*artifact.Artifact{art})

	t.Run("green before red", func(t *testing.T) {
		o := newOrchestrator("git-workflow")
		err := o.ProveGreen(ctx, art, snap)
		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StateRedPending, te.From)
	})

	t.Run("accept before green", func(t *testing.T) {
		o := newOrchestrator("git-workflow")
		require.NoError(t, o.ProveRed(ctx, true))
		err := o.Accept(ctx, art, snap)
		var te *TransitionError
		require.ErrorAs(t, err, &te)
	})

	t.Run("rejected is terminal", func(t *testing.T) {
		o := newOrchestrator("git-workflow")
		o.Reject()
		assert.Error(t, o.ProveRed(ctx, true))
		assert.Error(t, o.ProveGreen(ctx, art, snap))
		assert.Error(t, o.Accept(ctx, art, snap))
		assert.Equal(t, StateRejected, o.State())
	})
}

func TestLifecycleAcceptSmokeCheckFailure(t *testing.T) {
	ctx := context.Background()
	art := mustParse(t, "git-workflow", compliantContent)
	snap := registry.NewSnapshot([]*artifact.Artifact{art})

	// A snapshot that does not contain the artifact makes the discovery
	// smoke-check fail.
	empty := registry.NewSnapshot(nil)

	o := newOrchestrator("git-workflow")
	require.NoError(t, o.ProveRed(ctx, true))
	require.NoError(t, o.ProveGreen(ctx, art, snap))

	err := o.Accept(ctx, art, empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not discoverable")
	assert.Equal(t, StateRejected, o.State())
}

const foldHelperContent = `---
name: fold-helper
description: |
  Use when folding
  markdown headers. <example>fold the header</example>
---

Collapses long headers.

## Output

A folded header.

## Stop Conditions

Stop once folded.
`

func TestLifecycleAcceptSeesRemediatedArtifact(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "fold-helper.md")
	require.NoError(t, os.WriteFile(path, []byte(foldHelperContent), 0o644))
	art := artifact.Load(path, artifact.LocationLibrary)
	require.True(t, art.Parseable(), "fixture must parse: %v", art.ParseErr)

	snap := registry.NewSnapshot([]*artifact.Artifact{art})

	// Demote the critical phases so the block-scalar description only
	// warns at the green gate and gets repaired at the refactor gate. The
	// repair rewrites the description, so the discovery check has to run
	// against the remediated record rather than the one loaded before.
	rules := audit.DefaultRuleSet()
	rules.CriticalPhases = nil
	auditor := audit.NewEngine(rules)
	o := NewOrchestrator("fold-helper", auditor, remedy.NewEngine(auditor), search.NewEngine(search.Weights{}))

	require.NoError(t, o.ProveRed(ctx, true))
	require.NoError(t, o.ProveGreen(ctx, art, snap))
	require.NoError(t, o.Accept(ctx, art, snap))
	assert.Equal(t, StateAccepted, o.State())

	reloaded := artifact.Load(path, artifact.LocationLibrary)
	require.True(t, reloaded.Parseable())
	assert.False(t, reloaded.HasBlockScalar("description"))
}
