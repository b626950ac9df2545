package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdeola/skillbase/pkg/document"
)

const hookSkill = `# Hooks

## duplicate-check

Only check paths under src.
Skip generated code.

## lint-check

Run the linter.
`

func parseHookSkill(t *testing.T) *document.Document {
	t.Helper()
	return document.Parse("hooks", hookSkill)
}

func sectionText(t *testing.T, doc *document.Document, path string) string {
	t.Helper()
	sec := doc.Find(path)
	require.NotNil(t, sec, "section %s", path)
	return strings.Join(sec.Content, "\n")
}

func TestApplyAppendPrepend(t *testing.T) {
	doc := parseHookSkill(t)

	patched, results := Apply(doc, []Op{
		{TargetPath: "Hooks/duplicate-check", Action: ActionAppend, Payload: "Exclude test fixtures."},
		{TargetPath: "Hooks/duplicate-check", Action: ActionPrepend, Payload: "Read this first."},
	})

	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)

	content := patched.Find("Hooks/duplicate-check").Content
	assert.Equal(t, "Read this first.", content[0])
	assert.Equal(t, "Exclude test fixtures.", content[len(content)-1])

	// input document untouched
	assert.NotContains(t, sectionText(t, doc, "Hooks/duplicate-check"), "Exclude test fixtures.")
}

func TestApplyAppendIsNotIdempotent(t *testing.T) {
	doc := parseHookSkill(t)
	op := Op{TargetPath: "Hooks/lint-check", Action: ActionAppend, Payload: "Also run vet."}

	patched, _ := Apply(doc, []Op{op, op})

	text := sectionText(t, patched, "Hooks/lint-check")
	assert.Equal(t, 2, strings.Count(text, "Also run vet."))
}

func TestApplyInsertAfter(t *testing.T) {
	t.Run("inserts after the marker line", func(t *testing.T) {
		doc := parseHookSkill(t)
		patched, results := Apply(doc, []Op{{
			TargetPath: "Hooks/duplicate-check",
			Action:     ActionInsertAfter,
			Marker:     "Only check paths",
			Payload:    "Exclude tests.",
		}})

		require.True(t, results[0].OK)
		content := patched.Find("Hooks/duplicate-check").Content
		for i, line := range content {
			if strings.Contains(line, "Only check paths") {
				assert.Equal(t, "Exclude tests.", content[i+1])
				return
			}
		}
		t.Fatal("marker line disappeared")
	})

	t.Run("marker matching is whitespace-normalized", func(t *testing.T) {
		doc := parseHookSkill(t)
		_, results := Apply(doc, []Op{{
			TargetPath: "Hooks/duplicate-check",
			Action:     ActionInsertAfter,
			Marker:     "Only   check    paths",
			Payload:    "x",
		}})
		assert.True(t, results[0].OK)
	})

	t.Run("missing marker fails that op only", func(t *testing.T) {
		doc := parseHookSkill(t)
		_, results := Apply(doc, []Op{
			{TargetPath: "Hooks/duplicate-check", Action: ActionInsertAfter, Marker: "no such line", Payload: "x"},
			{TargetPath: "Hooks/lint-check", Action: ActionAppend, Payload: "still runs"},
		})

		require.Len(t, results, 2)
		var markerErr *MarkerNotFoundError
		require.ErrorAs(t, results[0].Err, &markerErr)
		assert.Equal(t, "no such line", markerErr.Marker)
		assert.True(t, results[1].OK)
	})

	t.Run("ambiguous marker uses first match and warns", func(t *testing.T) {
		doc := document.Parse("s", "# A\n\ncheck here\nother\ncheck here\n")
		patched, results := Apply(doc, []Op{{
			TargetPath: "A", Action: ActionInsertBefore, Marker: "check here", Payload: "inserted",
		}})

		require.True(t, results[0].OK)
		assert.Contains(t, results[0].Warning, "using the first")
		content := patched.Find("A").Content
		// payload lands before the first occurrence, not the second
		first := -1
		for i, line := range content {
			if line == "inserted" {
				first = i
				break
			}
		}
		require.GreaterOrEqual(t, first, 0)
		assert.Contains(t, content[first+1], "check here")
	})
}

func TestApplyOrderSensitivity(t *testing.T) {
	a := Op{TargetPath: "Hooks/duplicate-check", Action: ActionInsertAfter, Marker: "Only check paths", Payload: "NEW-ANCHOR line"}
	b := Op{TargetPath: "Hooks/duplicate-check", Action: ActionInsertAfter, Marker: "NEW-ANCHOR", Payload: "depends on A"}

	t.Run("A then B succeeds", func(t *testing.T) {
		doc := parseHookSkill(t)
		_, results := Apply(doc, []Op{a, b})
		assert.True(t, results[0].OK)
		assert.True(t, results[1].OK)
	})

	t.Run("B then A fails B with MarkerNotFound", func(t *testing.T) {
		doc := parseHookSkill(t)
		_, results := Apply(doc, []Op{b, a})
		var markerErr *MarkerNotFoundError
		require.ErrorAs(t, results[0].Err, &markerErr)
		assert.True(t, results[1].OK)
	})
}

func TestApplyReplaceSection(t *testing.T) {
	t.Run("replaces subsection content by name", func(t *testing.T) {
		doc := parseHookSkill(t)
		patched, results := Apply(doc, []Op{{
			TargetPath: "Hooks",
			Action:     ActionReplaceSection,
			Marker:     "duplicate-check",
			Payload:    "Entirely new rules.",
		}})

		require.True(t, results[0].OK)
		assert.Equal(t, "Entirely new rules.", sectionText(t, patched, "Hooks/duplicate-check"))
	})

	t.Run("subsection name matching is case-insensitive", func(t *testing.T) {
		doc := parseHookSkill(t)
		_, results := Apply(doc, []Op{{
			TargetPath: "Hooks", Action: ActionReplaceSection, Marker: "DUPLICATE-CHECK", Payload: "x",
		}})
		assert.True(t, results[0].OK)
	})

	t.Run("replace is idempotent", func(t *testing.T) {
		op := Op{TargetPath: "Hooks", Action: ActionReplaceSection, Marker: "lint-check", Payload: "Run everything."}

		doc := parseHookSkill(t)
		once, _ := Apply(doc, []Op{op})
		twice, _ := Apply(doc, []Op{op, op})
		assert.Equal(t, once.Render(), twice.Render())
	})
}

func TestApplyDeleteSection(t *testing.T) {
	doc := parseHookSkill(t)
	patched, results := Apply(doc, []Op{{
		TargetPath: "Hooks", Action: ActionDeleteSection, Marker: "duplicate-check",
	}})

	require.True(t, results[0].OK)
	assert.Nil(t, patched.Find("Hooks/duplicate-check"))
	assert.NotNil(t, patched.Find("Hooks/lint-check"))
	assert.NotContains(t, patched.Render(), "Only check paths")
}

func TestApplySectionNotFound(t *testing.T) {
	doc := parseHookSkill(t)
	_, results := Apply(doc, []Op{{
		TargetPath: "Hooks/nope", Action: ActionAppend, Payload: "x",
	}})

	var notFound *SectionNotFoundError
	require.ErrorAs(t, results[0].Err, &notFound)
	assert.Equal(t, "Hooks/nope", notFound.Path)
}

func TestOpValidate(t *testing.T) {
	cases := []struct {
		name string
		op   Op
		ok   bool
	}{
		{"append without marker", Op{TargetPath: "a", Action: ActionAppend, Payload: "x"}, true},
		{"append with marker", Op{TargetPath: "a", Action: ActionAppend, Marker: "m", Payload: "x"}, false},
		{"insert-after without marker", Op{TargetPath: "a", Action: ActionInsertAfter, Payload: "x"}, false},
		{"delete with payload", Op{TargetPath: "a", Action: ActionDeleteSection, Marker: "m", Payload: "x"}, false},
		{"delete", Op{TargetPath: "a", Action: ActionDeleteSection, Marker: "m"}, true},
		{"unknown action", Op{TargetPath: "a", Action: "explode"}, false},
		{"missing target", Op{Action: ActionAppend, Payload: "x"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.op.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
