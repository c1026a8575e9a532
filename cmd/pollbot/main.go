// Package main contains the entrypoint for the poll bot.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exitCode = 1
	}
	stop()
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	serveCommand := serveCmd()

	root := &cobra.Command{
		Use:           "pollbot",
		Short:         "Telegram bot running reaction-based polls",
		Long:          "pollbot publishes polls created with /poll, counts one vote per member from reactions and posts the results when the poll closes.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCommand.RunE,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yaml", "path to the YAML configuration file")

	root.AddCommand(serveCommand)
	root.AddCommand(migrateCmd())

	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := serve(cmd.Context(), configPath); err != nil {
				slog.Error("Bot stopped due to error", "error", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := migrate(configPath); err != nil {
				slog.Error("Migration failed", "error", err)
				return err
			}
			return nil
		},
	}
}
