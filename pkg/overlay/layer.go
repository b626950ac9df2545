// Package overlay resolves a skill's base document together with its layered
// override sources into one effective document. Overrides come from three
// tiers in ascending priority: user scope, project shared, project local.
// Structural overrides (section patches, extensions) run through the patch
// engine; config, hook and script overrides are flat substitutions applied in
// a separate pass with last-write-wins-by-tier semantics.
package overlay

import (
	"github.com/jdeola/skillbase/pkg/document"
	"github.com/jdeola/skillbase/pkg/patch"
)

// Tier identifies the priority tier of an override layer. Higher values win.
type Tier int

const (
	TierUserScope Tier = iota
	TierProjectShared
	TierProjectLocal
)

func (t Tier) String() string {
	switch t {
	case TierProjectLocal:
		return "project-local"
	case TierProjectShared:
		return "project-shared"
	case TierUserScope:
		return "user"
	default:
		return "unknown"
	}
}

// Kind identifies what an override layer carries.
type Kind string

const (
	KindFullOverride   Kind = "full"
	KindSectionPatch   Kind = "patch"
	KindExtension      Kind = "extend"
	KindConfigOverride Kind = "config"
	KindHookOverride   Kind = "hook"
	KindScriptOverride Kind = "script"
)

// Layer is one override source at one tier. Exactly one of the payload
// fields is populated, depending on Kind. Layers are loaded fresh from layer
// storage on every resolution; nothing here is cached.
type Layer struct {
	Tier Tier
	Kind Kind

	// Document is the replacement document for KindFullOverride.
	Document *document.Document
	// Ops is the ordered patch set for KindSectionPatch.
	Ops []patch.Op
	// Extension is the additive markdown for KindExtension.
	Extension string
	// Values holds key/value pairs for KindConfigOverride.
	Values map[string]string
	// Resources holds name -> content for KindHookOverride and
	// KindScriptOverride.
	Resources map[string]string
}

// Resolution is the outcome of resolving one skill.
type Resolution struct {
	Skill    string
	Document *document.Document
	Config   map[string]string
	Hooks    map[string]string
	Scripts  map[string]string
	// Results holds per-op outcomes from the structural pass.
	Results []patch.Result
	// FullOverride reports that a full-override layer short-circuited the
	// base document, and at which tier.
	FullOverride     bool
	FullOverrideTier Tier
}

// Degraded reports whether the resolution completed with op-level failures.
func (r *Resolution) Degraded() bool {
	return patch.Failed(r.Results)
}
