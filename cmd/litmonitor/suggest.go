package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Analyze accumulated feedback and propose config changes",
	Long: `Suggest asks the oracle to review starred and dismissed papers against the
current configuration and proposes new queries, keywords, authors, or
projects. Proposals are stored for review in the web UI.`,
	RunE: runSuggest,
}

func init() {
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	suggestions, err := a.Pipeline().SuggestConfig(cmd.Context())
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		fmt.Println("No suggestions generated; star more papers first")
		return nil
	}
	for _, s := range suggestions {
		fmt.Printf("[%s] %s\n", s.Type, s.Text)
		if s.Rationale != "" {
			fmt.Printf("    %s\n", s.Rationale)
		}
	}
	return nil
}
