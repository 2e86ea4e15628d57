package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
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

func fixtureSnapshot(t *testing.T) *registry.Snapshot {
	t.Helper()
	return registry.NewSnapshot([]*artifact.Artifact{
		mustParse(t, "git-workflow",
			"---\nname: git-workflow\ndescription: Use when committing or branching.\n---\n\nBody.\n",
			artifact.LocationLibrary),
		mustParse(t, "git-bisect",
			"---\nname: git-bisect\ndescription: Use when hunting a regression.\n---\n\nBody.\n",
			artifact.LocationLibrary),
		mustParse(t, "release-runner",
			"---\nname: release-runner\ndescription: Use when cutting a release with git tags.\ntype: task\nskills:\n  - git-workflow\n---\n\nBody.\n",
			artifact.LocationPrimary),
		artifact.Parse("broken", []byte("no frontmatter\n"), artifact.LocationLibrary),
	})
}

func TestSearchExactIdentifierOutranksSubstring(t *testing.T) {
	engine := NewEngine(Weights{})
	results := engine.Search("git-workflow", fixtureSnapshot(t), Filters{}, 0)

	require.NotEmpty(t, results)
	assert.Equal(t, "git-workflow", results[0].Artifact.Identifier)
	assert.Equal(t, 100, results[0].Score)
	assert.Contains(t, results[0].MatchedFields, FieldIdentifier)

	// release-runner matches only through its skills membership.
	last := results[len(results)-1]
	assert.Equal(t, "release-runner", last.Artifact.Identifier)
	assert.Equal(t, 10, last.Score)
	assert.Contains(t, last.MatchedFields, FieldSkills)
}

func TestSearchSubstringAndDescription(t *testing.T) {
	engine := NewEngine(Weights{})
	results := engine.Search("git", fixtureSnapshot(t), Filters{}, 0)

	require.Len(t, results, 3)
	// git-bisect and git-workflow both score 50 on the identifier substring;
	// the tie breaks alphabetically. release-runner only matches on its
	// description.
	assert.Equal(t, "git-bisect", results[0].Artifact.Identifier)
	assert.Equal(t, "git-workflow", results[1].Artifact.Identifier)
	assert.Equal(t, results[0].Score, results[1].Score)
	assert.Equal(t, "release-runner", results[2].Artifact.Identifier)
	assert.Equal(t, 30, results[2].Score)
	assert.Contains(t, results[2].MatchedFields, FieldDescription)
}

func TestSearchDeterministic(t *testing.T) {
	engine := NewEngine(Weights{})
	snap := fixtureSnapshot(t)

	first := engine.Search("git", snap, Filters{}, 0)
	second := engine.Search("git", snap, Filters{}, 0)
	assert.Equal(t, first, second)
}

func TestSearchKindFilterScoresBonus(t *testing.T) {
	engine := NewEngine(Weights{})
	results := engine.Search("git", fixtureSnapshot(t), Filters{Kind: artifact.KindTask}, 0)

	require.Len(t, results, 1)
	assert.Equal(t, "release-runner", results[0].Artifact.Identifier)
	assert.Contains(t, results[0].MatchedFields, FieldKind)
}

func TestSearchLocationFilter(t *testing.T) {
	engine := NewEngine(Weights{})
	results := engine.Search("git", fixtureSnapshot(t), Filters{Location: artifact.LocationLibrary}, 0)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, artifact.LocationLibrary, r.Artifact.Location)
	}
}

func TestSearchLimitTruncatesAfterSort(t *testing.T) {
	engine := NewEngine(Weights{})
	results := engine.Search("git", fixtureSnapshot(t), Filters{}, 1)

	require.Len(t, results, 1)
	// Truncation happens after sorting, so the single result is the best one.
	assert.Equal(t, "git-bisect", results[0].Artifact.Identifier)
}

func TestSearchEmptyQuery(t *testing.T) {
	engine := NewEngine(Weights{})
	assert.Nil(t, engine.Search("", fixtureSnapshot(t), Filters{}, 0))
	assert.Nil(t, engine.Search("   ", fixtureSnapshot(t), Filters{}, 0))
}

func TestSearchExcludesUnparseableArtifacts(t *testing.T) {
	engine := NewEngine(Weights{})
	results := engine.Search("broken", fixtureSnapshot(t), Filters{}, 0)
	assert.Empty(t, results, "unparseable artifacts are undiscoverable until repaired")
}

func TestSearchNoMatch(t *testing.T) {
	engine := NewEngine(Weights{})
	assert.Empty(t, engine.Search("kubernetes", fixtureSnapshot(t), Filters{}, 0))
}

func TestSearchTypeFilterWithLimit(t *testing.T) {
	taskContent := func(name, desc string) string {
		return "---\nname: " + name + "\ndescription: " + desc + "\ntype: task\n---\n\nBody.\n"
	}
	snap := registry.NewSnapshot([]*artifact.Artifact{
		mustParse(t, "react", taskContent("react", "Use when building components."), artifact.LocationPrimary),
		mustParse(t, "react-testing", taskContent("react-testing", "Use when testing components."), artifact.LocationPrimary),
		mustParse(t, "react-router", taskContent("react-router", "Use when routing."), artifact.LocationPrimary),
		mustParse(t, "component-builder", taskContent("component-builder", "Use when scaffolding react components."), artifact.LocationPrimary),
		mustParse(t, "hooks-helper", taskContent("hooks-helper", "Use when writing react hooks."), artifact.LocationPrimary),
	})

	results := NewEngine(Weights{}).Search("react", snap, Filters{Kind: artifact.KindTask}, 2)

	require.Len(t, results, 2)
	// The exact-identifier match outranks the substring and
	// description-only matches; the kind bonus applies to every result.
	assert.Equal(t, "react", results[0].Artifact.Identifier)
	assert.Equal(t, 120, results[0].Score)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchCustomWeights(t *testing.T) {
	engine := NewEngine(Weights{
		IdentifierExact:     1,
		IdentifierSubstring: 1,
		Description:         500,
		KindFilter:          1,
		Membership:          1,
	})
	results := engine.Search("git", fixtureSnapshot(t), Filters{}, 0)

	require.NotEmpty(t, results)
	// Description weight dominates under the custom weights.
	assert.Equal(t, "release-runner", results[0].Artifact.Identifier)
	assert.GreaterOrEqual(t, results[0].Score, 500)
}
