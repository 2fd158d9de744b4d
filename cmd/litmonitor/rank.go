package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Score unranked papers with the ranking oracle",
	RunE:  runRank,
}

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().Int("limit", 0, "maximum papers to score (0 scores everything waiting)")
}

func runRank(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Pipeline().RunRanking(cmd.Context(), limit)
	if err != nil {
		return err
	}
	fmt.Printf("Ranked %d papers (%d unranked, %d skipped)\n",
		summary.Scored, summary.Unranked, summary.Skipped)
	return nil
}
