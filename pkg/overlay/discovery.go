package overlay

import (
	"os"
	"path/filepath"
	"sort"
)

// SkillInfo describes one discovered skill and the tiers that carry content
// for it.
type SkillInfo struct {
	Name        string
	Description string
	Tiers       []Tier
}

// ListSkills discovers every skill that has a layer directory at any tier.
// The description comes from the baseline document's frontmatter when
// present.
func (l *Loader) ListSkills() ([]SkillInfo, error) {
	found := map[string]*SkillInfo{}

	for _, tier := range []Tier{TierUserScope, TierProjectShared, TierProjectLocal} {
		root := filepath.Dir(l.TierDir("placeholder", tier))
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			info, ok := found[name]
			if !ok {
				info = &SkillInfo{Name: name}
				found[name] = info
			}
			info.Tiers = append(info.Tiers, tier)
		}
	}

	skills := make([]SkillInfo, 0, len(found))
	for _, info := range found {
		if doc, err := l.LoadBase(info.Name); err == nil && doc.Meta != nil {
			info.Description, _ = doc.Meta["description"].(string)
		}
		skills = append(skills, *info)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}
