package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the feedback log with known-good papers",
}

var seedAddCmd = &cobra.Command{
	Use:   "add <doi-or-pmid>",
	Short: "Resolve a DOI or PMID and star it as a positive example",
	Long: `Add resolves the identifier against CrossRef or PubMed, stores the paper
as a seed, and records a star. Seeds shape token weights and ranking
immediately but never appear in digests.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeedAdd,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedAddCmd)
}

func runSeedAdd(cmd *cobra.Command, args []string) error {
	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	paper, err := a.Pipeline().AddSeed(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %q (%s)\n", paper.Title, paper.ID)
	return nil
}
