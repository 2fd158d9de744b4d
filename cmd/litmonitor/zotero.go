package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var zoteroCmd = &cobra.Command{
	Use:   "zotero",
	Short: "Zotero reference library operations",
}

var zoteroSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import recently updated Zotero items as starred seeds",
	RunE:  runZoteroSync,
}

func init() {
	rootCmd.AddCommand(zoteroCmd)
	zoteroCmd.AddCommand(zoteroSyncCmd)

	zoteroSyncCmd.Flags().String("tag", "", "only import items carrying this tag (default from config)")
}

func runZoteroSync(cmd *cobra.Command, args []string) error {
	if tag, _ := cmd.Flags().GetString("tag"); tag != "" {
		cfg.Zotero.Tag = tag
	}

	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	imported, err := a.Pipeline().SyncLibrary(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d papers from Zotero\n", imported)
	return nil
}
