package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdeola/skillbase/pkg/patch"
)

func TestSimilarity(t *testing.T) {
	t.Run("identical payloads", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("exclude tests", "exclude tests"))
	})

	t.Run("case and punctuation insensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("Exclude tests!", "exclude, tests"))
	})

	t.Run("disjoint payloads", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("exclude tests", "enable caching"))
	})

	t.Run("partial overlap", func(t *testing.T) {
		// {exclude, tests, always} vs {exclude, tests, never}: 2/4
		assert.InDelta(t, 0.5, Similarity("exclude tests always", "exclude tests never"), 1e-9)
	})

	t.Run("empty payloads score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("", "exclude tests"))
		assert.Equal(t, 0.0, Similarity("", ""))
	})
}

func TestConsistent(t *testing.T) {
	op := func(target string, action patch.Action, payload string) patch.Op {
		return patch.Op{TargetPath: target, Action: action, Payload: payload}
	}

	t.Run("uniform members", func(t *testing.T) {
		assert.True(t, Consistent([]patch.Op{
			op("hooks/dup", patch.ActionAppend, "exclude tests"),
			op("hooks/dup", patch.ActionAppend, "exclude the tests"),
		}))
	})

	t.Run("different target path", func(t *testing.T) {
		assert.False(t, Consistent([]patch.Op{
			op("hooks/dup", patch.ActionAppend, "exclude tests"),
			op("hooks/lint", patch.ActionAppend, "exclude tests"),
		}))
	})

	t.Run("different action", func(t *testing.T) {
		assert.False(t, Consistent([]patch.Op{
			op("hooks/dup", patch.ActionAppend, "exclude tests"),
			op("hooks/dup", patch.ActionPrepend, "exclude tests"),
		}))
	})

	t.Run("one divergent member breaks the whole set", func(t *testing.T) {
		assert.False(t, Consistent([]patch.Op{
			op("hooks/dup", patch.ActionAppend, "exclude tests from duplicate check"),
			op("hooks/dup", patch.ActionAppend, "exclude tests from the duplicate check"),
			op("hooks/dup", patch.ActionAppend, "completely unrelated payload text"),
		}))
	})

	t.Run("delete ops with no payload agree", func(t *testing.T) {
		assert.True(t, Consistent([]patch.Op{
			{TargetPath: "hooks", Action: patch.ActionDeleteSection, Marker: "dup"},
			{TargetPath: "hooks", Action: patch.ActionDeleteSection, Marker: "dup"},
		}))
	})

	t.Run("empty set", func(t *testing.T) {
		assert.False(t, Consistent(nil))
	})
}
