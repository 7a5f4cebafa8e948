package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhubert/cristal-core/claude"
	"github.com/zhubert/cristal-core/cli"
	"github.com/zhubert/cristal-core/process"
)

var doctorCleanup bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check prerequisites, credentials and stray CLI processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		checker := cli.NewChecker(nil)
		prereqs := cli.DefaultPrerequisites()
		fmt.Println(cli.FormatCheckResults(checker.CheckAll(prereqs)))

		if _, ok := claude.DefaultTokenSource()(); ok {
			fmt.Println("✓ credentials found")
		} else {
			fmt.Println("○ no stored credentials; run \"claude login\" if sends fail with an auth error")
		}

		fmt.Printf("  permission policy: %s\n", claude.PolicyPath(cfg.GetWorkingDir()))

		// Nothing is running in this process, so every match is stray.
		orphans, err := process.FindOrphans(nil)
		if err != nil {
			fmt.Printf("? could not list processes: %v\n", err)
		}
		switch {
		case len(orphans) == 0:
			fmt.Println("✓ no stray CLI processes")
		case doctorCleanup:
			n, err := process.CleanupOrphans(nil)
			if err != nil {
				return err
			}
			fmt.Printf("✓ terminated %d stray CLI processes\n", n)
		default:
			fmt.Printf("✗ %d stray CLI processes (rerun with --cleanup to stop them)\n", len(orphans))
			for _, p := range orphans {
				if id := process.ResumeID(p.Command); id != "" {
					fmt.Printf("    pid %d  resume %s\n", p.PID, id)
				} else {
					fmt.Printf("    pid %d\n", p.PID)
				}
			}
		}

		return checker.ValidateRequired(prereqs)
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorCleanup, "cleanup", false, "Terminate stray CLI processes")
}
