package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdeola/skillbase/pkg/presenter"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Inspect available skills",
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills and the tiers that override them",
	Run: func(cmd *cobra.Command, args []string) {
		projectRoot, _ := cmd.Flags().GetString("project-root")
		loader, err := newLoader(projectRoot)
		if err != nil {
			presenter.Error(err, "Failed to initialize layer loader")
			os.Exit(1)
		}

		skills, err := loader.ListSkills()
		if err != nil {
			presenter.Error(err, "Failed to list skills")
			os.Exit(1)
		}
		if len(skills) == 0 {
			presenter.Info("No skills found")
			return
		}

		for _, s := range skills {
			tiers := make([]string, 0, len(s.Tiers))
			for _, t := range s.Tiers {
				tiers = append(tiers, t.String())
			}
			line := s.Name
			if s.Description != "" {
				line += ": " + s.Description
			}
			presenter.Info(line)
			presenter.Info(fmt.Sprintf("  tiers: %s", strings.Join(tiers, ", ")))
		}
	},
}

func init() {
	skillListCmd.Flags().String("project-root", "", "Project root directory (defaults to the working directory)")
	skillCmd.AddCommand(skillListCmd)
}
