package overlay

import (
	"context"
	"strings"

	"github.com/jdeola/skillbase/pkg/document"
	"github.com/jdeola/skillbase/pkg/logger"
	"github.com/jdeola/skillbase/pkg/patch"
)

// Resolve merges the base document with the given layers into one effective
// document. The base is the user-scope baseline; layers may come in any
// order and are processed by tier.
//
// A full-override layer replaces the base for its tier and everything below
// it: only layers at a strictly higher tier still apply on top. Otherwise
// structural layers (section patches, extensions) are applied in ascending
// tier order through the patch engine, so the highest tier patches last and
// wins conflicts. Config, hook and script layers never touch the patch
// engine; they merge in a final flat pass, highest tier winning per key.
func Resolve(ctx context.Context, skill string, base *document.Document, layers []Layer) *Resolution {
	log := logger.G(ctx).WithField("skill", skill)

	res := &Resolution{
		Skill:   skill,
		Config:  map[string]string{},
		Hooks:   map[string]string{},
		Scripts: map[string]string{},
	}

	// Highest-tier full override wins and discards its own and all lower
	// tiers.
	minTier := TierUserScope
	working := base
	for _, tier := range []Tier{TierProjectLocal, TierProjectShared, TierUserScope} {
		if layer, ok := findFull(layers, tier); ok {
			working = layer.Document
			res.FullOverride = true
			res.FullOverrideTier = tier
			minTier = tier + 1
			log.WithField("tier", tier.String()).Debug("full override short-circuits lower tiers")
			break
		}
	}

	// Structural pass, ascending tier.
	for tier := minTier; tier <= TierProjectLocal; tier++ {
		for _, layer := range layersAt(layers, tier) {
			switch layer.Kind {
			case KindSectionPatch:
				var results []patch.Result
				working, results = patch.Apply(working, layer.Ops)
				res.Results = append(res.Results, results...)
			case KindExtension:
				working = applyExtension(working, layer.Extension)
			}
		}
	}

	// Substitution pass, ascending tier, last write wins.
	for tier := minTier; tier <= TierProjectLocal; tier++ {
		for _, layer := range layersAt(layers, tier) {
			switch layer.Kind {
			case KindConfigOverride:
				for k, v := range layer.Values {
					res.Config[k] = v
				}
			case KindHookOverride:
				for name, content := range layer.Resources {
					res.Hooks[name] = content
				}
			case KindScriptOverride:
				for name, content := range layer.Resources {
					res.Scripts[name] = content
				}
			}
		}
	}

	res.Document = working

	if res.Degraded() {
		for _, r := range res.Results {
			if r.Err != nil {
				log.WithError(r.Err).WithField("op", r.Op.String()).Warn("patch op failed during resolution")
			}
		}
	}
	return res
}

// applyExtension appends additive markdown to the document and re-parses, so
// headings in the extension become addressable sections.
func applyExtension(doc *document.Document, extension string) *document.Document {
	rendered := doc.Render()
	if !strings.HasSuffix(rendered, "\n") && rendered != "" {
		rendered += "\n"
	}
	extension = strings.TrimRight(extension, "\n") + "\n"
	return document.Parse(doc.Skill, rendered+"\n"+extension)
}

func findFull(layers []Layer, tier Tier) (Layer, bool) {
	for _, layer := range layers {
		if layer.Tier == tier && layer.Kind == KindFullOverride {
			return layer, true
		}
	}
	return Layer{}, false
}

func layersAt(layers []Layer, tier Tier) []Layer {
	var out []Layer
	for _, layer := range layers {
		if layer.Tier == tier {
			out = append(out, layer)
		}
	}
	return out
}
