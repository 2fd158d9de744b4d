package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
	"LitMonitor/internal/usecase"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Assemble and deliver a digest of ranked papers",
	Long: `Digest collects ranked papers above the relevance floor that have never
appeared in a previous digest, groups them into priority tiers, and delivers
the result. Without --send-email the digest is written to the output
directory only.`,
	RunE: runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)

	digestCmd.Flags().Float64("min-score", 0, "relevance floor (default from config)")
	digestCmd.Flags().Int("days", 0, "include papers first seen this many days back (default from config)")
	digestCmd.Flags().Bool("send-email", false, "deliver the digest by email")
	digestCmd.Flags().Bool("dry-run", false, "render the digest without emailing or recording it")
	digestCmd.Flags().String("output-dir", "", "directory for digest files (default from config)")
}

func runDigest(cmd *cobra.Command, args []string) error {
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	days, _ := cmd.Flags().GetInt("days")
	sendEmail, _ := cmd.Flags().GetBool("send-email")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	a, err := buildApp(app.Options{
		SendEmail: sendEmail,
		DryRun:    dryRun,
		OutputDir: outputDir,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Pipeline().RunDigest(cmd.Context(), usecase.DigestOptions{
		MinScore: minScore,
		Days:     days,
		DryRun:   dryRun,
	})
	if err != nil {
		return err
	}
	if d.PaperCount() == 0 {
		fmt.Println("No new papers for the digest")
		return nil
	}
	fmt.Printf("Digest assembled with %d papers in %d tiers\n",
		d.PaperCount(), len(d.Tiers))
	return nil
}
