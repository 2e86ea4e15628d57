package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		valid      bool
	}{
		{"simple", "helper", true},
		{"kebab", "code-reviewer", true},
		{"digits", "v2-migrator", true},
		{"empty", "", false},
		{"uppercase", "Helper", false},
		{"underscore", "code_reviewer", false},
		{"leading dash", "-helper", false},
		{"trailing dash", "helper-", false},
		{"double dash", "code--reviewer", false},
		{"too long", "a-very-long-identifier-that-keeps-going-and-going-and-going-past-the-limit", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidIdentifier(tt.identifier))
		})
	}
}

func TestIdentifierFromPath(t *testing.T) {
	assert.Equal(t, "code-reviewer", IdentifierFromPath("/some/dir/code-reviewer.md"))
	assert.Equal(t, "git-workflow", IdentifierFromPath("categories/vcs/git-workflow.md"))
}

func TestParse(t *testing.T) {
	content := `---
name: code-reviewer
description: Use when reviewing a pull request. <example>review this diff</example>
type: task
tools:
  - Bash
  - Read
skills:
  - git-workflow
---

Intro paragraph.

## Output

A review summary.

## Stop Conditions

Stop after one pass.
`
	art := Parse("code-reviewer", []byte(content), LocationPrimary)
	require.True(t, art.Parseable())

	assert.Equal(t, "code-reviewer", art.Identifier)
	assert.Equal(t, LocationPrimary, art.Location)
	assert.Equal(t, KindTask, art.Kind)
	assert.Equal(t, "code-reviewer", art.Header.Name)
	assert.Equal(t, []string{"Bash", "Read"}, art.Header.Tools)
	assert.Equal(t, []string{"git-workflow"}, art.Header.Skills)
	assert.NotEmpty(t, art.SourceHash)
	assert.Empty(t, art.Header.UnknownKeys)

	section, ok := art.Section("Output")
	require.True(t, ok)
	assert.Equal(t, "A review summary.", section.Content)

	section, ok = art.Section("stop conditions")
	require.True(t, ok, "section lookup is case-insensitive")
	assert.Equal(t, "Stop after one pass.", section.Content)

	_, ok = art.Section("Missing")
	assert.False(t, ok)

	assert.Positive(t, art.LineCount)
}

func TestParseCommaSeparatedTools(t *testing.T) {
	content := `---
name: helper
description: Use when helping. <example>help</example>
tools: Read, Grep, Glob
---

Body.
`
	art := Parse("helper", []byte(content), LocationLibrary)
	require.True(t, art.Parseable())
	assert.Equal(t, []string{"Read", "Grep", "Glob"}, art.Header.Tools)
}

func TestParseUnknownKeys(t *testing.T) {
	content := `---
name: helper
description: Use when helping. <example>help</example>
zebra: stripes
aardvark: ants
---

Body.
`
	art := Parse("helper", []byte(content), LocationLibrary)
	require.True(t, art.Parseable())
	assert.Equal(t, []string{"aardvark", "zebra"}, art.Header.UnknownKeys, "unknown keys are sorted for stable reports")
}

func TestParseBlockScalarDescription(t *testing.T) {
	content := `---
name: folded
description: >
  Use when things
  span lines.
---

Body.
`
	art := Parse("folded", []byte(content), LocationLibrary)
	require.True(t, art.Parseable())
	assert.True(t, art.HasBlockScalar("description"))
	assert.False(t, art.HasBlockScalar("name"))
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "just a markdown body\n"},
		{"unterminated frontmatter", "---\nname: broken\n"},
		{"missing name", "---\ndescription: something\n---\n\nBody.\n"},
		{"missing description", "---\nname: broken\n---\n\nBody.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := Parse("broken", []byte(tt.content), LocationPrimary)
			assert.False(t, art.Parseable())
			assert.Error(t, art.ParseErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	art := Load(filepath.Join(t.TempDir(), "ghost.md"), LocationPrimary)
	assert.False(t, art.Parseable())
	assert.Equal(t, "ghost", art.Identifier)
}

func TestLoadSetsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "helper.md")
	content := "---\nname: helper\ndescription: Use when helping. <example>help</example>\n---\n\nBody.\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	art := Load(path, LocationLibrary)
	require.True(t, art.Parseable())
	assert.Equal(t, path, art.Path)
	assert.Equal(t, LocationLibrary, art.Location)
}

func TestMetadataCanonical(t *testing.T) {
	m := Metadata{
		Name:        "helper",
		Description: "line one\nline two",
		Tools:       []string{"Read", "Grep"},
		Skills:      []string{"z-skill", "a-skill"},
	}

	canonical := m.Canonical()
	assert.Equal(t, `line one\nline two`, canonical.Description)
	assert.Equal(t, []string{"Grep", "Read"}, canonical.Tools)
	assert.Equal(t, []string{"a-skill", "z-skill"}, canonical.Skills)

	// The receiver is untouched.
	assert.Equal(t, []string{"Read", "Grep"}, m.Tools)
}

func TestIsSorted(t *testing.T) {
	assert.True(t, IsSorted([]string{"a", "b"}))
	assert.True(t, IsSorted(nil))
	assert.False(t, IsSorted([]string{"b", "a"}))
}
