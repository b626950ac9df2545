package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSkill = `---
name: commit-helper
description: Formats commit messages
---
Intro line.

# Workflow

Step one.
Step two.

## Hooks

### duplicate-check

Only check paths under src.
Skip vendored files.

### lint-check

Run the linter first.

# Reference

See the style guide.
`

func TestParse(t *testing.T) {
	doc := Parse("commit-helper", sampleSkill)

	t.Run("frontmatter", func(t *testing.T) {
		require.NotNil(t, doc.Meta)
		assert.Equal(t, "commit-helper", doc.Meta["name"])
		assert.Equal(t, "Formats commit messages", doc.Meta["description"])
	})

	t.Run("preamble stays on the root section", func(t *testing.T) {
		assert.Contains(t, doc.Root.Content, "Intro line.")
	})

	t.Run("tree structure", func(t *testing.T) {
		require.Len(t, doc.Root.Children, 2)
		workflow := doc.Root.Children[0]
		assert.Equal(t, "Workflow", workflow.Name)
		assert.Equal(t, "Workflow", workflow.Path)

		hooks := doc.Find("Workflow/Hooks")
		require.NotNil(t, hooks)
		require.Len(t, hooks.Children, 2)
		assert.Equal(t, "Workflow/Hooks/duplicate-check", hooks.Children[0].Path)
	})

	t.Run("path lookup is case-insensitive", func(t *testing.T) {
		sec := doc.Find("workflow/hooks/DUPLICATE-CHECK")
		require.NotNil(t, sec)
		assert.Contains(t, sec.Content, "Only check paths under src.")
	})

	t.Run("missing path returns nil", func(t *testing.T) {
		assert.Nil(t, doc.Find("Workflow/Hooks/nonexistent"))
	})

	t.Run("no warnings on well-formed input", func(t *testing.T) {
		assert.Empty(t, doc.Warnings)
	})
}

func TestParseRoundTrip(t *testing.T) {
	doc := Parse("commit-helper", sampleSkill)
	assert.Equal(t, sampleSkill, doc.Render())
}

func TestParseHeadingsInsideCodeFences(t *testing.T) {
	src := "# Top\n\n```\n# not a heading\n```\n\ntail\n"
	doc := Parse("s", src)

	require.Len(t, doc.Root.Children, 1)
	top := doc.Root.Children[0]
	assert.Empty(t, top.Children)
	assert.Contains(t, top.Content, "# not a heading")
	assert.Equal(t, src, doc.Render())
}

func TestParseMalformedInput(t *testing.T) {
	t.Run("unterminated frontmatter", func(t *testing.T) {
		doc := Parse("s", "---\nname: broken\nno closing delimiter\n")
		require.NotEmpty(t, doc.Warnings)
		assert.NotNil(t, doc.Root)
	})

	t.Run("empty input yields usable document", func(t *testing.T) {
		doc := Parse("s", "")
		require.NotNil(t, doc.Root)
		assert.Empty(t, doc.Root.Children)
	})

	t.Run("duplicate section paths warn", func(t *testing.T) {
		doc := Parse("s", "# A\n\none\n\n# A\n\ntwo\n")
		require.Len(t, doc.Warnings, 1)
		assert.Contains(t, doc.Warnings[0].Message, "duplicate section path")
		// first occurrence wins on lookup
		sec := doc.Find("A")
		require.NotNil(t, sec)
		assert.Contains(t, strings.Join(sec.Content, "\n"), "one")
	})
}

func TestClone(t *testing.T) {
	doc := Parse("commit-helper", sampleSkill)
	clone := doc.Clone()

	sec := clone.Find("Workflow/Hooks/duplicate-check")
	require.NotNil(t, sec)
	sec.Content = append(sec.Content, "mutated")

	original := doc.Find("Workflow/Hooks/duplicate-check")
	assert.NotContains(t, original.Content, "mutated")
}
