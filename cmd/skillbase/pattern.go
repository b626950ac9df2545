package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/spf13/cobra"

	"github.com/jdeola/skillbase/pkg/generalize"
	"github.com/jdeola/skillbase/pkg/pattern"
	"github.com/jdeola/skillbase/pkg/presenter"
	"github.com/jdeola/skillbase/pkg/refinement"
)

var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Inspect and promote recurring refinement patterns",
}

var patternListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patterns ready for generalization",
	Long: `List patterns whose refinements recur across enough distinct projects to
be promoted. With --all, tracking and terminal patterns are shown as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")

		store, err := newStore(ctx)
		if err != nil {
			presenter.Error(err, "Failed to open refinement store")
			os.Exit(1)
		}
		defer store.Close()

		var patterns []refinement.Pattern
		if all {
			patterns, err = store.ListPatterns(ctx)
		} else {
			patterns, err = pattern.NewAggregator(store, aggregatorOptions()...).ListReady(ctx)
		}
		if err != nil {
			presenter.Error(err, "Failed to list patterns")
			os.Exit(1)
		}
		if len(patterns) == 0 {
			presenter.Info("No patterns found")
			return
		}

		for _, p := range patterns {
			presenter.Info(fmt.Sprintf("%s  %-24s  %-20s  %d refinement(s), %d project(s)  [%s]",
				p.ID, p.Skill, p.TargetPath, len(p.MemberIDs), len(p.Projects), p.Status))
		}
	},
}

var patternShowCmd = &cobra.Command{
	Use:   "show [pattern-id]",
	Short: "Show a pattern's members and representative fix",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store, err := newStore(ctx)
		if err != nil {
			presenter.Error(err, "Failed to open refinement store")
			os.Exit(1)
		}
		defer store.Close()

		p, err := store.GetPattern(ctx, args[0])
		if err != nil {
			presenter.Error(err, fmt.Sprintf("Failed to find pattern %s", args[0]))
			os.Exit(1)
		}

		presenter.Section(p.ID)
		presenter.Info(fmt.Sprintf("Skill:    %s", p.Skill))
		presenter.Info(fmt.Sprintf("Target:   %s", p.TargetPath))
		presenter.Info(fmt.Sprintf("Status:   %s", p.Status))
		presenter.Info(fmt.Sprintf("Projects: %s", strings.Join(p.Projects, ", ")))
		if p.DismissedReason != "" {
			presenter.Info(fmt.Sprintf("Dismissed: %s", p.DismissedReason))
		}
		presenter.Info(fmt.Sprintf("Fix:      %s", p.Representative.String()))
		if p.Representative.Payload != "" {
			presenter.Info(fmt.Sprintf("Payload:  %s", p.Representative.Payload))
		}

		presenter.Section("Members")
		for _, id := range p.MemberIDs {
			r, err := store.GetRefinement(ctx, id)
			if err != nil {
				presenter.Warning(fmt.Sprintf("%s (unreadable: %s)", id, err))
				continue
			}
			presenter.Info(fmt.Sprintf("%s  project=%s  status=%s", r.ID, r.Project, r.Status))
			if r.ExpectedBehavior != "" {
				presenter.Info(fmt.Sprintf("  expected: %s", r.ExpectedBehavior))
			}
			if r.ActualBehavior != "" {
				presenter.Info(fmt.Sprintf("  actual:   %s", r.ActualBehavior))
			}
		}
	},
}

var patternPromoteCmd = &cobra.Command{
	Use:   "promote [pattern-id]",
	Short: "Promote a ready pattern into the user-scope baseline",
	Long: `Promote applies a ready pattern's fix to the skill's baseline document.
The write is all-or-nothing: the baseline is backed up and verified first,
and any failure leaves it untouched. With --dry-run the resulting diff is
shown without writing.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		projectRoot, _ := cmd.Flags().GetString("project-root")

		store, err := newStore(ctx)
		if err != nil {
			presenter.Error(err, "Failed to open refinement store")
			os.Exit(1)
		}
		defer store.Close()

		loader, err := newLoader(projectRoot)
		if err != nil {
			presenter.Error(err, "Failed to initialize layer loader")
			os.Exit(1)
		}
		applier := generalize.NewApplier(store, loader)

		if dryRun {
			result, err := applier.Plan(ctx, args[0])
			if err != nil {
				presenter.Error(err, "Promotion would fail")
				os.Exit(1)
			}
			for _, change := range result.Changes {
				presenter.Section(change.DocumentPath)
				fmt.Print(udiff.Unified("current", "promoted", change.Before, change.After))
			}
			return
		}

		result, err := applier.Promote(ctx, args[0])
		if err != nil {
			presenter.Error(err, "Promotion failed, baseline unchanged")
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Pattern %s generalized (promotion %s)", result.PatternID, result.PromotionID))
		for _, change := range result.Changes {
			presenter.Info(fmt.Sprintf("Updated %s", change.DocumentPath))
			presenter.Info(fmt.Sprintf("Backup at %s", change.BackupPath))
		}
		maybeSync(ctx)
	},
}

var patternDismissCmd = &cobra.Command{
	Use:   "dismiss [pattern-id]",
	Short: "Dismiss a pattern so it is never promoted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		reason, _ := cmd.Flags().GetString("reason")

		store, err := newStore(ctx)
		if err != nil {
			presenter.Error(err, "Failed to open refinement store")
			os.Exit(1)
		}
		defer store.Close()

		loader, err := newLoader("")
		if err != nil {
			presenter.Error(err, "Failed to initialize layer loader")
			os.Exit(1)
		}

		if err := generalize.NewApplier(store, loader).Dismiss(ctx, args[0], reason); err != nil {
			presenter.Error(err, "Failed to dismiss pattern")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Pattern %s dismissed", args[0]))
		maybeSync(ctx)
	},
}

var patternRollbackCmd = &cobra.Command{
	Use:   "rollback [pattern-id]",
	Short: "Restore the baseline from a pattern's latest promotion backup",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		store, err := newStore(ctx)
		if err != nil {
			presenter.Error(err, "Failed to open refinement store")
			os.Exit(1)
		}
		defer store.Close()

		loader, err := newLoader("")
		if err != nil {
			presenter.Error(err, "Failed to initialize layer loader")
			os.Exit(1)
		}

		if err := generalize.NewApplier(store, loader).Rollback(ctx, args[0]); err != nil {
			presenter.Error(err, "Rollback failed")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Pattern %s rolled back, baseline restored from backup", args[0]))
		maybeSync(ctx)
	},
}

func init() {
	patternListCmd.Flags().Bool("all", false, "Include tracking, generalized and dismissed patterns")
	patternPromoteCmd.Flags().Bool("dry-run", false, "Show the resulting diff without writing anything")
	patternPromoteCmd.Flags().String("project-root", "", "Project root directory (defaults to the working directory)")
	patternDismissCmd.Flags().String("reason", "", "Why the pattern should not be generalized")
	patternDismissCmd.MarkFlagRequired("reason")

	patternCmd.AddCommand(patternListCmd)
	patternCmd.AddCommand(patternShowCmd)
	patternCmd.AddCommand(patternPromoteCmd)
	patternCmd.AddCommand(patternDismissCmd)
	patternCmd.AddCommand(patternRollbackCmd)
}
