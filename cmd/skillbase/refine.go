package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"github.com/spf13/cobra"

	"github.com/jdeola/skillbase/pkg/overlay"
	"github.com/jdeola/skillbase/pkg/patch"
	"github.com/jdeola/skillbase/pkg/pattern"
	"github.com/jdeola/skillbase/pkg/presenter"
	"github.com/jdeola/skillbase/pkg/refinement"
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Record skill refinements",
}

type RefineSubmitConfig struct {
	Skill       string
	Target      string
	Action      string
	Marker      string
	Payload     string
	Expected    string
	Actual      string
	Project     string
	ProjectRoot string
	DryRun      bool
}

func NewRefineSubmitConfig() *RefineSubmitConfig {
	return &RefineSubmitConfig{
		Action: string(patch.ActionAppend),
	}
}

var refineSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a refinement and apply it to the project-local layer",
	Long: `Submit records an observed gap between what a skill should have covered
and what it did, together with the proposed fix as a patch operation. The fix
is written into the project-local override layer and the refinement joins
pattern tracking, so fixes recurring across projects can later be promoted
into the baseline.

Example:
  skillbase refine submit --skill code-review --target rules \
    --action insert-after --marker "Only check paths under src/." \
    --payload "Exclude generated and test files." \
    --expected "review skipped generated files" \
    --actual "review flagged generated files" \
    --project my-service`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getRefineSubmitConfigFromFlags(cmd)

		op := patch.Op{
			TargetPath: config.Target,
			Action:     patch.Action(config.Action),
			Marker:     config.Marker,
			Payload:    config.Payload,
		}
		if err := op.Validate(); err != nil {
			presenter.Error(err, "Invalid patch operation")
			os.Exit(1)
		}

		loader, err := newLoader(config.ProjectRoot)
		if err != nil {
			presenter.Error(err, "Failed to initialize layer loader")
			os.Exit(1)
		}

		// Preview against the current effective document so a bad target or
		// marker is caught before anything is written.
		base, err := loader.LoadBase(config.Skill)
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to load baseline for skill %q", config.Skill))
			os.Exit(1)
		}
		layers, err := loader.LoadLayers(config.Skill)
		if err != nil {
			presenter.Error(err, "Failed to load override layers")
			os.Exit(1)
		}
		effective := overlay.Resolve(ctx, config.Skill, base, layers)
		patched, results := patch.Apply(effective.Document, []patch.Op{op})
		if patch.Failed(results) {
			for _, r := range results {
				if r.Err != nil {
					presenter.Error(r.Err, "Refinement does not apply to the current effective document")
				}
			}
			os.Exit(1)
		}

		if config.DryRun {
			presenter.Section("Proposed change")
			fmt.Print(udiff.Unified("current", "proposed", effective.Document.Render(), patched.Render()))
			return
		}

		store, err := newStore(ctx)
		if err != nil {
			presenter.Error(err, "Failed to open refinement store")
			os.Exit(1)
		}
		defer store.Close()

		r := refinement.Refinement{
			ID:               refinement.NewID("REF"),
			Skill:            config.Skill,
			TargetPath:       config.Target,
			ExpectedBehavior: config.Expected,
			ActualBehavior:   config.Actual,
			Proposed:         op,
			Project:          config.Project,
			CreatedAt:        time.Now().UTC(),
			Status:           refinement.StatusPending,
		}
		if err := store.AppendRefinement(ctx, r); err != nil {
			presenter.Error(err, "Failed to record refinement")
			os.Exit(1)
		}

		layerPath, err := loader.AppendLocalPatch(config.Skill, op)
		if err != nil {
			presenter.Error(err, "Failed to write project-local layer")
			presenter.Info(fmt.Sprintf("Refinement %s is recorded but not applied", r.ID))
			os.Exit(1)
		}
		if err := store.SetRefinementStatus(ctx, r.ID, refinement.StatusApplied); err != nil {
			presenter.Error(err, "Failed to mark refinement applied")
			os.Exit(1)
		}

		agg := pattern.NewAggregator(store, aggregatorOptions()...)
		p, err := agg.Submit(ctx, r)
		if err != nil {
			presenter.Error(err, "Failed to update pattern tracking")
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Refinement %s applied to %s", r.ID, layerPath))
		switch p.Status {
		case refinement.PatternReady:
			presenter.Info(fmt.Sprintf("Pattern %s is ready for generalization (%d projects)", p.ID, len(p.Projects)))
			presenter.Info(fmt.Sprintf("Run 'skillbase pattern promote %s' to update the baseline", p.ID))
		default:
			presenter.Info(fmt.Sprintf("Pattern %s is tracking %d project(s)", p.ID, len(p.Projects)))
		}

		maybeSync(ctx)
	},
}

func init() {
	defaults := NewRefineSubmitConfig()
	refineSubmitCmd.Flags().StringVar(&defaults.Skill, "skill", "", "Skill the refinement targets")
	refineSubmitCmd.Flags().StringVar(&defaults.Target, "target", "", "Section path the fix applies to, e.g. rules/style")
	refineSubmitCmd.Flags().StringVar(&defaults.Action, "action", defaults.Action, "Patch action (append, prepend, replace-section, insert-after, insert-before, delete-section)")
	refineSubmitCmd.Flags().StringVar(&defaults.Marker, "marker", "", "Marker line or subsection, where the action requires one")
	refineSubmitCmd.Flags().StringVar(&defaults.Payload, "payload", "", "Content the action inserts or substitutes")
	refineSubmitCmd.Flags().StringVar(&defaults.Expected, "expected", "", "Behavior the skill should have produced")
	refineSubmitCmd.Flags().StringVar(&defaults.Actual, "actual", "", "Behavior the skill actually produced")
	refineSubmitCmd.Flags().StringVar(&defaults.Project, "project", "", "Project identifier (defaults to the project root directory name)")
	refineSubmitCmd.Flags().String("project-root", "", "Project root directory (defaults to the working directory)")
	refineSubmitCmd.Flags().Bool("dry-run", false, "Show the resulting diff without writing anything")
	refineSubmitCmd.MarkFlagRequired("skill")
	refineSubmitCmd.MarkFlagRequired("target")

	refineCmd.AddCommand(refineSubmitCmd)
}

func getRefineSubmitConfigFromFlags(cmd *cobra.Command) *RefineSubmitConfig {
	config := NewRefineSubmitConfig()
	flags := cmd.Flags()
	config.Skill, _ = flags.GetString("skill")
	config.Target, _ = flags.GetString("target")
	if action, err := flags.GetString("action"); err == nil && action != "" {
		config.Action = action
	}
	config.Marker, _ = flags.GetString("marker")
	config.Payload, _ = flags.GetString("payload")
	config.Expected, _ = flags.GetString("expected")
	config.Actual, _ = flags.GetString("actual")
	config.Project, _ = flags.GetString("project")
	config.ProjectRoot, _ = flags.GetString("project-root")
	config.DryRun, _ = flags.GetBool("dry-run")

	if config.Project == "" {
		root := config.ProjectRoot
		if root == "" {
			root, _ = os.Getwd()
		}
		config.Project = filepath.Base(root)
	}
	return config
}
