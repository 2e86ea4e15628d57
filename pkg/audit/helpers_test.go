package audit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/defkit/defkit/pkg/artifact"
	"github.com/defkit/defkit/pkg/registry"
)

func mustParse(t *testing.T, identifier, content string, loc artifact.Location) *artifact.Artifact {
	t.Helper()
	art := artifact.Parse(identifier, []byte(content), loc)
	require.True(t, art.Parseable(), "fixture must parse: %v", art.ParseErr)
	return art
}

func snapshotOf(arts ...*artifact.Artifact) *registry.Snapshot {
	return registry.NewSnapshot(arts)
}

const compliantSkillContent = `---
name: git-workflow
description: Use when committing or branching. <example>user asks to commit staged changes</example>
---

Keep commits small.

## Output

A clean commit.

## Stop Conditions

Stop once pushed.
`

func compliantSkill(t *testing.T) *artifact.Artifact {
	t.Helper()
	return mustParse(t, "git-workflow", compliantSkillContent, artifact.LocationLibrary)
}

const compliantTaskContent = `---
name: release-runner
description: Use when cutting a release. <example>user asks to ship version 2</example>
type: task
skills:
  - git-workflow
---

Invoke Skill(git-workflow) before tagging, even if the tree looks clean.

## Output

Release notes.

## Stop Conditions

Stop on pipeline failure.
`

func compliantTask(t *testing.T) *artifact.Artifact {
	t.Helper()
	return mustParse(t, "release-runner", compliantTaskContent, artifact.LocationPrimary)
}
