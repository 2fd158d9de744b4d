package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Feedback log operations",
}

var feedbackSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull one-click email actions from the delivery worker",
	RunE:  runFeedbackSync,
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackSyncCmd)
}

func runFeedbackSync(cmd *cobra.Command, args []string) error {
	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	applied, err := a.Pipeline().SyncFeedback(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Applied %d feedback actions\n", applied)
	return nil
}
