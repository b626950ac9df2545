package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdeola/skillbase/pkg/document"
	"github.com/jdeola/skillbase/pkg/patch"
)

const baseSkill = `# Rules

## formatting

Use tabs.

## naming

Short names.
`

func replaceOp(payload string) []patch.Op {
	return []patch.Op{{
		TargetPath: "Rules",
		Action:     patch.ActionReplaceSection,
		Marker:     "formatting",
		Payload:    payload,
	}}
}

func TestResolveLayerPriority(t *testing.T) {
	base := document.Parse("rules", baseSkill)

	layers := []Layer{
		{Tier: TierProjectShared, Kind: KindSectionPatch, Ops: replaceOp("shared wins?")},
		{Tier: TierUserScope, Kind: KindSectionPatch, Ops: replaceOp("user wins?")},
		{Tier: TierProjectLocal, Kind: KindSectionPatch, Ops: replaceOp("local wins")},
	}

	res := Resolve(context.Background(), "rules", base, layers)
	require.False(t, res.Degraded())

	sec := res.Document.Find("Rules/formatting")
	require.NotNil(t, sec)
	assert.Equal(t, []string{"local wins"}, sec.Content)
}

func TestResolveFullOverrideShortCircuit(t *testing.T) {
	base := document.Parse("rules", baseSkill)
	override := document.Parse("rules", "# Replacement\n\nAll new.\n")

	t.Run("local full override ignores every other layer", func(t *testing.T) {
		layers := []Layer{
			{Tier: TierProjectLocal, Kind: KindFullOverride, Document: override},
			{Tier: TierProjectShared, Kind: KindSectionPatch, Ops: replaceOp("never applied")},
			{Tier: TierUserScope, Kind: KindConfigOverride, Values: map[string]string{"k": "v"}},
		}

		res := Resolve(context.Background(), "rules", base, layers)
		assert.True(t, res.FullOverride)
		assert.Equal(t, TierProjectLocal, res.FullOverrideTier)
		assert.Empty(t, res.Results)
		assert.Empty(t, res.Config)
		assert.Nil(t, res.Document.Find("Rules"))
		assert.NotNil(t, res.Document.Find("Replacement"))
	})

	t.Run("higher-tier layers still apply above a lower full override", func(t *testing.T) {
		layers := []Layer{
			{Tier: TierProjectShared, Kind: KindFullOverride, Document: override},
			{Tier: TierProjectLocal, Kind: KindSectionPatch, Ops: []patch.Op{{
				TargetPath: "Replacement", Action: patch.ActionAppend, Payload: "local addition",
			}}},
			{Tier: TierUserScope, Kind: KindSectionPatch, Ops: replaceOp("ignored")},
		}

		res := Resolve(context.Background(), "rules", base, layers)
		require.False(t, res.Degraded())
		assert.Equal(t, TierProjectShared, res.FullOverrideTier)
		sec := res.Document.Find("Replacement")
		require.NotNil(t, sec)
		assert.Contains(t, sec.Content, "local addition")
	})
}

func TestResolveExtension(t *testing.T) {
	base := document.Parse("rules", baseSkill)
	layers := []Layer{{
		Tier:      TierProjectShared,
		Kind:      KindExtension,
		Extension: "# Extras\n\nExtended guidance.\n",
	}}

	res := Resolve(context.Background(), "rules", base, layers)
	sec := res.Document.Find("Extras")
	require.NotNil(t, sec)
	assert.Contains(t, sec.Content, "Extended guidance.")
	// original sections survive
	assert.NotNil(t, res.Document.Find("Rules/naming"))
}

func TestResolveSubstitutionPass(t *testing.T) {
	base := document.Parse("rules", baseSkill)
	layers := []Layer{
		{Tier: TierUserScope, Kind: KindConfigOverride, Values: map[string]string{"timeout": "30", "mode": "strict"}},
		{Tier: TierProjectLocal, Kind: KindConfigOverride, Values: map[string]string{"timeout": "5"}},
		{Tier: TierUserScope, Kind: KindHookOverride, Resources: map[string]string{"pre-commit": "user hook"}},
		{Tier: TierProjectShared, Kind: KindHookOverride, Resources: map[string]string{"pre-commit": "shared hook"}},
		{Tier: TierProjectShared, Kind: KindScriptOverride, Resources: map[string]string{"run.sh": "echo hi"}},
	}

	res := Resolve(context.Background(), "rules", base, layers)

	assert.Equal(t, "5", res.Config["timeout"], "highest tier wins per key")
	assert.Equal(t, "strict", res.Config["mode"], "untouched keys survive")
	assert.Equal(t, "shared hook", res.Hooks["pre-commit"])
	assert.Equal(t, "echo hi", res.Scripts["run.sh"])
}

func TestResolveCollectsOpFailures(t *testing.T) {
	base := document.Parse("rules", baseSkill)
	layers := []Layer{
		{Tier: TierProjectLocal, Kind: KindSectionPatch, Ops: []patch.Op{
			{TargetPath: "Rules/missing", Action: patch.ActionAppend, Payload: "x"},
			{TargetPath: "Rules/naming", Action: patch.ActionAppend, Payload: "applied anyway"},
		}},
		{Tier: TierProjectLocal, Kind: KindConfigOverride, Values: map[string]string{"k": "v"}},
	}

	res := Resolve(context.Background(), "rules", base, layers)

	assert.True(t, res.Degraded())
	require.Len(t, res.Results, 2)
	var notFound *patch.SectionNotFoundError
	require.ErrorAs(t, res.Results[0].Err, &notFound)
	assert.True(t, res.Results[1].OK)

	// structural failures do not affect the substitution pass
	assert.Equal(t, "v", res.Config["k"])
	assert.Contains(t, res.Document.Find("Rules/naming").Content, "applied anyway")
}
