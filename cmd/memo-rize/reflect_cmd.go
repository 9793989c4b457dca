package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tofunori/memo-rize/internal/reflector"
)

// reflectCmd implements the Reflector CLI surface (spec §6): no args prints
// a report, --apply acts on every finding, --json renders the report as JSON.
func reflectCmd() *cobra.Command {
	var apply bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "reflect",
		Short: "Sweep the vault for expired, clustered, stale, and orphaned notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			rep, err := d.reflectorEngine().Run(apply)
			if err != nil {
				return fmt.Errorf("reflect: %w", err)
			}

			if jsonOut {
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal report: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printReflectReport(rep, apply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply findings instead of only reporting them")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	return cmd
}

func printReflectReport(rep reflector.Report, apply bool) {
	if rep.Skipped {
		fmt.Printf("Skipped: vault has %d note(s), below REFLECT_MIN_NOTES\n", rep.NoteCount)
		return
	}

	mode := "report"
	if apply {
		mode = "applied"
	}
	fmt.Printf("Reflect (%s): %d notes scanned\n\n", mode, rep.NoteCount)

	fmt.Printf("Expired (%d):\n", len(rep.Expired))
	for _, e := range rep.Expired {
		fmt.Printf("  %s (%s)\n", e.NoteID, e.Reason)
	}

	fmt.Printf("\nClusters (%d):\n", len(rep.Clusters))
	for _, c := range rep.Clusters {
		fmt.Printf("  %v\n", c)
	}

	fmt.Printf("\nStale (%d):\n", len(rep.Stale))
	for _, s := range rep.Stale {
		fmt.Printf("  %s\n", s)
	}

	fmt.Printf("\nOrphans (%d):\n", len(rep.Orphans))
	for _, o := range rep.Orphans {
		fmt.Printf("  %s\n", o)
	}
}
