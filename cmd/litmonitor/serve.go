package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the config editor and feedback web server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Web.Addr = addr
	}

	a, err := buildApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Listening on %s (config: %s)\n", cfg.Web.Addr, cfgFile)
	return a.Serve(ctx)
}
