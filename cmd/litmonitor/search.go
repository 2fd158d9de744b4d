package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Fetch new papers without ranking them",
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Int("days", 0, "lookback window in days (default from config)")
	searchCmd.Flags().Bool("pubmed-only", false, "fetch from PubMed sources only")
}

func runSearch(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	pubmedOnly, _ := cmd.Flags().GetBool("pubmed-only")

	a, err := buildApp(app.Options{PubMedOnly: pubmedOnly})
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.Pipeline().RunSearch(cmd.Context(), days)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d papers, %d new (%d high priority)\n",
		run.PapersFound, run.NewPapers, run.HighPriority)
	return nil
}
