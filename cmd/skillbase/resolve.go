package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jdeola/skillbase/pkg/overlay"
	"github.com/jdeola/skillbase/pkg/presenter"
)

type ResolveConfig struct {
	ProjectRoot string
	JSON        bool
}

func NewResolveConfig() *ResolveConfig {
	return &ResolveConfig{}
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [skill]",
	Short: "Resolve a skill's effective document through its override layers",
	Long: `Resolve reads the skill's baseline document and applies the override
layers from all three tiers (user, project shared, project local), printing
the effective document.

Exits 0 on a clean resolution, 2 when the resolution completed but some
override operations failed, and 1 on a hard error such as a missing skill.

Example:
  skillbase resolve code-review
  skillbase resolve code-review --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getResolveConfigFromFlags(cmd)
		skill := args[0]

		loader, err := newLoader(config.ProjectRoot)
		if err != nil {
			presenter.Error(err, "Failed to initialize layer loader")
			os.Exit(1)
		}

		base, err := loader.LoadBase(skill)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to load baseline for skill %q", skill))
			os.Exit(1)
		}
		layers, err := loader.LoadLayers(skill)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to load override layers for skill %q", skill))
			os.Exit(1)
		}

		res := overlay.Resolve(ctx, skill, base, layers)

		if config.JSON {
			printResolutionJSON(res)
		} else {
			printResolution(res)
		}

		if res.Degraded() {
			os.Exit(2)
		}
	},
}

func init() {
	resolveDefaults := NewResolveConfig()
	resolveCmd.Flags().StringVar(&resolveDefaults.ProjectRoot, "project-root", "", "Project root directory (defaults to the working directory)")
	resolveCmd.Flags().Bool("json", false, "Emit the resolution as JSON")
}

func getResolveConfigFromFlags(cmd *cobra.Command) *ResolveConfig {
	config := NewResolveConfig()
	if root, err := cmd.Flags().GetString("project-root"); err == nil {
		config.ProjectRoot = root
	}
	if jsonOut, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = jsonOut
	}
	return config
}

func printResolution(res *overlay.Resolution) {
	for _, r := range res.Results {
		if r.Err != nil {
			presenter.Warning(fmt.Sprintf("Skipped %s: %s", r.Op.String(), r.Err))
		} else if r.Warning != "" {
			presenter.Warning(fmt.Sprintf("%s: %s", r.Op.String(), r.Warning))
		}
	}
	if res.FullOverride {
		presenter.Info(fmt.Sprintf("Document fully overridden at the %s tier", res.FullOverrideTier))
	}
	fmt.Print(res.Document.Render())

	if len(res.Config) > 0 {
		presenter.Section("Config")
		keys := make([]string, 0, len(res.Config))
		for k := range res.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			presenter.Info(fmt.Sprintf("%s: %s", k, res.Config[k]))
		}
	}
}

// opResultView is the JSON shape of one per-op outcome.
type opResultView struct {
	Op      string `json:"op"`
	OK      bool   `json:"ok"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

type resolutionView struct {
	Skill            string            `json:"skill"`
	Document         string            `json:"document"`
	Config           map[string]string `json:"config,omitempty"`
	Hooks            []string          `json:"hooks,omitempty"`
	Scripts          []string          `json:"scripts,omitempty"`
	FullOverride     bool              `json:"fullOverride"`
	FullOverrideTier string            `json:"fullOverrideTier,omitempty"`
	Degraded         bool              `json:"degraded"`
	Results          []opResultView    `json:"results,omitempty"`
}

func printResolutionJSON(res *overlay.Resolution) {
	view := resolutionView{
		Skill:        res.Skill,
		Document:     res.Document.Render(),
		Config:       res.Config,
		Hooks:        sortedKeys(res.Hooks),
		Scripts:      sortedKeys(res.Scripts),
		FullOverride: res.FullOverride,
		Degraded:     res.Degraded(),
	}
	if res.FullOverride {
		view.FullOverrideTier = res.FullOverrideTier.String()
	}
	for _, r := range res.Results {
		v := opResultView{Op: r.Op.String(), OK: r.OK, Warning: r.Warning}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		view.Results = append(view.Results, v)
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		presenter.Error(err, "Failed to encode resolution")
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
