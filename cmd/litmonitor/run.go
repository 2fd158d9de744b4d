package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
	"LitMonitor/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline once: sync feedback, search, rank, digest",
	Long: `Run executes one complete monitoring cycle. Remote one-click feedback is
synced first so it shapes this run's scoring, then new papers are fetched,
ranked, and assembled into a digest.

Email goes out only with --send-email; without it the digest is written to
the output directory and still marked as delivered. Use --dry-run to keep
the papers eligible for the next digest.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("days", 0, "lookback window in days (default from config)")
	runCmd.Flags().Bool("pubmed-only", false, "fetch from PubMed sources only")
	runCmd.Flags().Bool("skip-ranking", false, "skip oracle scoring")
	runCmd.Flags().Bool("send-email", false, "deliver the digest by email")
	runCmd.Flags().Bool("dry-run", false, "render the digest without emailing or recording it")
	runCmd.Flags().String("output-dir", "", "directory for digest files (default from config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	pubmedOnly, _ := cmd.Flags().GetBool("pubmed-only")
	skipRanking, _ := cmd.Flags().GetBool("skip-ranking")
	sendEmail, _ := cmd.Flags().GetBool("send-email")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	a, err := buildApp(app.Options{
		PubMedOnly: pubmedOnly,
		SendEmail:  sendEmail,
		DryRun:     dryRun,
		OutputDir:  outputDir,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	p := a.Pipeline()

	if _, err := p.SyncFeedback(ctx); err != nil {
		logger.Warn("feedback sync failed, continuing", "error", err)
	}

	run, err := p.RunSearch(ctx, days)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d papers, %d new (%d high priority)\n",
		run.PapersFound, run.NewPapers, run.HighPriority)

	if !skipRanking {
		summary, err := p.RunRanking(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Printf("Ranked %d papers (%d unranked, %d skipped)\n",
			summary.Scored, summary.Unranked, summary.Skipped)
	}

	d, err := p.RunDigest(ctx, usecase.DigestOptions{Days: days, DryRun: dryRun})
	if err != nil {
		return err
	}
	if d.PaperCount() == 0 {
		fmt.Println("No new papers for the digest")
		return nil
	}
	fmt.Printf("Digest assembled with %d papers\n", d.PaperCount())
	return nil
}
