package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics and recent search runs",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	stats, err := a.Store().Stats(ctx)
	if err != nil {
		return err
	}
	runs, err := a.Store().SearchRuns(ctx, 5)
	if err != nil {
		return err
	}

	fmt.Printf("Papers:      %d%s\n", stats.TotalPapers, formatBySource(stats.BySource))
	fmt.Printf("Ranked:      %d (%d high priority)\n", stats.RankedPapers, stats.HighPriority)
	fmt.Printf("Feedback:    %d starred, %d dismissed, %d seeds\n",
		stats.Starred, stats.Dismissed, stats.Seeds)
	fmt.Printf("Search runs: %d\n", stats.TotalRuns)

	if len(runs) > 0 {
		fmt.Println("Recent runs:")
		for _, run := range runs {
			fmt.Printf("  %s  found %-4d new %-4d high %d\n",
				run.RunAt.Format("2006-01-02 15:04"), run.PapersFound, run.NewPapers, run.HighPriority)
		}
	}
	return nil
}

func formatBySource(bySource map[string]int) string {
	if len(bySource) == 0 {
		return ""
	}
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %d", name, bySource[name]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
