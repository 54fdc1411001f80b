package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/cjdb-export/internal/journal"
)

var runCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show one export run from the journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runShowRun(cmd *cobra.Command, args []string) error {
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()
	if err := j.Migrate(cmd.Context()); err != nil {
		return err
	}

	run, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Command:  %s\n", run.Command)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Objects:  %d\n", run.Objects)
	fmt.Printf("Tiles:    %d\n", run.Tiles)
	fmt.Printf("Skipped:  %d\n", run.Skipped)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	skips, err := j.ListSkips(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	if len(skips) > 0 {
		fmt.Println("\nSkipped features:")
		for _, s := range skips {
			fmt.Printf("  %s pk=%s: %s\n", s.Source, s.FeaturePK, s.Reason)
		}
	}
	return nil
}
