package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"LitMonitor/internal/app"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the cron schedule and the web server until interrupted",
	Long: `Daemon starts the scheduled pipeline (full cycles per the configured cron
expression, email delivery enabled) together with the config web UI, and
runs until SIGINT or SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := buildApp(app.Options{SendEmail: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Schedule %q (%s), web UI on %s\n",
		cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), cfg.Web.Addr)
	return a.Daemon(ctx)
}
