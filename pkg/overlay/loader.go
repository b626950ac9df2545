package overlay

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"gopkg.in/yaml.v3"

	"github.com/jdeola/skillbase/pkg/document"
	"github.com/jdeola/skillbase/pkg/patch"
)

const (
	skillFileName  = "SKILL.md"
	patchFileName  = "SKILL.patch.yaml"
	extendFileName = "SKILL.extend.md"
	configFileName = "config.yaml"
)

// patchFile is the on-disk shape of SKILL.patch.yaml: an ordered op list.
type patchFile struct {
	Ops []patch.Op `yaml:"ops"`
}

// Loader reads override layers from their tier directories:
//
//	user scope      ~/.skillbase/skills/<skill>/        (SKILL.md is the baseline)
//	project shared  <root>/.skillbase/skills/<skill>/
//	project local   <root>/.skillbase/skills.local/<skill>/
//
// Layers are read fresh on every call; layer storage may change between
// resolutions and nothing is cached here.
type Loader struct {
	projectRoot string
	userDir     string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader) error

// WithProjectRoot sets the project root directory.
func WithProjectRoot(root string) LoaderOption {
	return func(l *Loader) error {
		l.projectRoot = root
		return nil
	}
}

// WithUserDir sets the user-scope base directory (default ~/.skillbase).
func WithUserDir(dir string) LoaderOption {
	return func(l *Loader) error {
		l.userDir = dir
		return nil
	}
}

// NewLoader creates a Loader rooted at the current directory and the user's
// home unless overridden.
func NewLoader(opts ...LoaderOption) (*Loader, error) {
	l := &Loader{}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	if l.projectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get working directory")
		}
		l.projectRoot = cwd
	}
	if l.userDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		l.userDir = filepath.Join(home, ".skillbase")
	}
	return l, nil
}

// UserDir returns the user-scope base directory.
func (l *Loader) UserDir() string { return l.userDir }

// TierDir returns the layer directory for a skill at a tier.
func (l *Loader) TierDir(skill string, tier Tier) string {
	switch tier {
	case TierProjectLocal:
		return filepath.Join(l.projectRoot, ".skillbase", "skills.local", skill)
	case TierProjectShared:
		return filepath.Join(l.projectRoot, ".skillbase", "skills", skill)
	default:
		return filepath.Join(l.userDir, "skills", skill)
	}
}

// BaselinePath returns the user-scope baseline document path for a skill.
func (l *Loader) BaselinePath(skill string) string {
	return filepath.Join(l.TierDir(skill, TierUserScope), skillFileName)
}

// LoadBase reads and parses the user-scope baseline document.
func (l *Loader) LoadBase(skill string) (*document.Document, error) {
	data, err := os.ReadFile(l.BaselinePath(skill))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read baseline for skill %q", skill)
	}
	return document.Parse(skill, string(data)), nil
}

// LoadLayers reads every override layer present for the skill across all
// tiers. At the user tier SKILL.md is the baseline, not a full override, so
// it is skipped there.
func (l *Loader) LoadLayers(skill string) ([]Layer, error) {
	var layers []Layer
	for _, tier := range []Tier{TierUserScope, TierProjectShared, TierProjectLocal} {
		dir := l.TierDir(skill, tier)
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		if tier != TierUserScope {
			if data, err := os.ReadFile(filepath.Join(dir, skillFileName)); err == nil {
				layers = append(layers, Layer{
					Tier:     tier,
					Kind:     KindFullOverride,
					Document: document.Parse(skill, string(data)),
				})
			}
		}

		if data, err := os.ReadFile(filepath.Join(dir, patchFileName)); err == nil {
			var pf patchFile
			if err := yaml.Unmarshal(data, &pf); err != nil {
				return nil, errors.Wrapf(err, "malformed patch layer %s", filepath.Join(dir, patchFileName))
			}
			layers = append(layers, Layer{Tier: tier, Kind: KindSectionPatch, Ops: pf.Ops})
		}

		if data, err := os.ReadFile(filepath.Join(dir, extendFileName)); err == nil {
			layers = append(layers, Layer{Tier: tier, Kind: KindExtension, Extension: string(data)})
		}

		if data, err := os.ReadFile(filepath.Join(dir, configFileName)); err == nil {
			values := map[string]string{}
			if err := yaml.Unmarshal(data, &values); err != nil {
				return nil, errors.Wrapf(err, "malformed config layer %s", filepath.Join(dir, configFileName))
			}
			layers = append(layers, Layer{Tier: tier, Kind: KindConfigOverride, Values: values})
		}

		for kind, subdir := range map[Kind]string{KindHookOverride: "hooks", KindScriptOverride: "scripts"} {
			resources, err := loadResources(dir, subdir)
			if err != nil {
				return nil, err
			}
			if len(resources) > 0 {
				layers = append(layers, Layer{Tier: tier, Kind: kind, Resources: resources})
			}
		}
	}
	return layers, nil
}

// loadResources reads every file directly under dir/subdir, keyed by name.
func loadResources(dir, subdir string) (map[string]string, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, subdir+"/*", doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", filepath.Join(dir, subdir))
	}

	resources := map[string]string{}
	for _, match := range matches {
		data, err := fs.ReadFile(fsys, match)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read resource %s", match)
		}
		resources[filepath.Base(match)] = string(data)
	}
	return resources, nil
}

// AppendLocalPatch appends an op to the project-local SKILL.patch.yaml,
// creating the layer directory on first use. The read-modify-write runs under
// a file lock so that concurrent submissions do not drop each other's ops.
// Returns the layer file path.
func (l *Loader) AppendLocalPatch(skill string, op patch.Op) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}

	dir := l.TierDir(skill, TierProjectLocal)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create project-local layer directory")
	}

	path := filepath.Join(dir, patchFileName)
	err := lockedfile.Transform(path, func(data []byte) ([]byte, error) {
		var pf patchFile
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, &pf); err != nil {
				return nil, errors.Wrapf(err, "malformed patch layer %s", path)
			}
		}
		pf.Ops = append(pf.Ops, op)
		return yaml.Marshal(&pf)
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to update project-local patch layer")
	}
	return path, nil
}
